package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ActiveSession is the row enforcing single-session-per-user. The collection
// carries a unique index on user_id; inserting a second row for the same user
// fails, which is how a login detects a competing session.
type ActiveSession struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     string             `bson:"user_id" json:"user_id"`
	Token      string             `bson:"token" json:"-"`
	CompanyID  string             `bson:"company_id" json:"company_id"`
	DeviceInfo string             `bson:"device_info" json:"device_info"`
	LoginAt    time.Time          `bson:"login_at" json:"login_at"`
}
