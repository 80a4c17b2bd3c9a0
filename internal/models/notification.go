package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification delivery states.
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// Notification is a message for a user, either delivered or waiting for its send time.
type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	VehicleID string             `bson:"vehicle_id,omitempty" json:"vehicle_id,omitempty"`
	Message   string             `bson:"message" json:"message"`
	Type      string             `bson:"type" json:"type"` // "maintenance_reminder", "urgent_alert", "followup"
	Channel   string             `bson:"channel" json:"channel"`
	Status    string             `bson:"status" json:"status"`
	SendAt    time.Time          `bson:"send_at" json:"send_at"`
	SentAt    *time.Time         `bson:"sent_at,omitempty" json:"sent_at,omitempty"`
	Error     string             `bson:"error,omitempty" json:"error,omitempty"`
	IsRead    bool               `bson:"is_read" json:"is_read"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// AgentAction is an audit entry for something the agent did on its own.
type AgentAction struct {
	ID           primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	ActionType   string                 `bson:"action_type" json:"action_type"`
	UserID       string                 `bson:"user_id" json:"user_id"`
	VehicleID    string                 `bson:"vehicle_id" json:"vehicle_id"`
	Data         map[string]interface{} `bson:"data" json:"data"`
	AgentVersion string                 `bson:"agent_version" json:"agent_version"`
	Timestamp    time.Time              `bson:"timestamp" json:"timestamp"`
}
