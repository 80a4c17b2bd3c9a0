package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/carbuddy/internal/maintenance"
	"github.com/ukydev/carbuddy/internal/models"
	"github.com/ukydev/carbuddy/internal/notify"
)

const (
	learningWindow = 7 * 24 * time.Hour
	reminderBatch  = 100
)

// UrgentCheck alerts owners about overdue safety-critical items by push and
// SMS. It never consults the advisor. A vehicle is alerted at most once per
// cooldown period.
func (a *Agent) UrgentCheck(ctx context.Context) (Summary, error) {
	owners, err := a.Store.GetActiveVehicleOwners(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("agent: failed to load owners: %w", err)
	}

	sum := Summary{Owners: len(owners)}
	for _, owner := range owners {
		for _, vehicle := range owner.Vehicles {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			sum.Vehicles++
			alerted, err := a.urgentVehicle(ctx, owner.User, vehicle)
			if err != nil {
				sum.Failed++
				log.WithFields(log.Fields{
					"job":        "hourly-urgent-check",
					"user_id":    owner.User.ID.Hex(),
					"vehicle_id": vehicle.ID.Hex(),
				}).WithError(err).Error("Urgent check failed")
				continue
			}
			sum.Analyzed++
			if alerted {
				sum.Actions++
			}
		}
	}

	log.WithFields(log.Fields{
		"job":      "hourly-urgent-check",
		"vehicles": sum.Vehicles,
		"alerts":   sum.Actions,
		"failed":   sum.Failed,
	}).Info("Urgent check completed")
	return sum, nil
}

func (a *Agent) urgentVehicle(ctx context.Context, user models.User, vehicle models.Vehicle) (bool, error) {
	vehicleID := vehicle.ID.Hex()
	history, err := a.Store.GetMaintenanceHistory(ctx, vehicleID)
	if err != nil {
		return false, err
	}
	now := a.now()
	recs, err := maintenance.Aggregate(Snapshot(vehicle), ToServiceRecords(history), a.Catalog, now)
	if err != nil {
		return false, err
	}

	var reasons, types []string
	for _, r := range recs {
		if r.Status == maintenance.StatusOverdue && r.SafetyCritical {
			reasons = append(reasons, r.Reason)
			types = append(types, r.ServiceType)
		}
	}
	if len(reasons) == 0 {
		a.clearUrgent(vehicleID)
		return false, nil
	}
	if !a.claimUrgent(vehicleID, now) {
		return false, nil
	}

	msg := Personalize(vehicle, fmt.Sprintf("needs urgent safety maintenance: %s. Please schedule service as soon as possible.",
		strings.Join(reasons, "; ")))
	results := []notify.Result{
		a.Notifier.SendPush(ctx, user.ID.Hex(), msg),
		a.Notifier.SendSMS(ctx, user.Phone, msg),
	}

	a.logAction(ctx, models.AgentAction{
		ActionType: ActionUrgentAlert,
		UserID:     user.ID.Hex(),
		VehicleID:  vehicleID,
		Data: map[string]interface{}{
			"service_types": types,
			"results":       results,
		},
	})
	return true, nil
}

func (a *Agent) claimUrgent(vehicleID string, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if last, ok := a.lastUrgent[vehicleID]; ok && now.Sub(last) < a.cfg.UrgentCooldown {
		return false
	}
	a.lastUrgent[vehicleID] = now
	return true
}

// noteUrgent starts the cooldown for an alert sent outside UrgentCheck.
func (a *Agent) noteUrgent(vehicleID string, now time.Time) {
	a.mu.Lock()
	a.lastUrgent[vehicleID] = now
	a.mu.Unlock()
}

func (a *Agent) clearUrgent(vehicleID string) {
	a.mu.Lock()
	delete(a.lastUrgent, vehicleID)
	a.mu.Unlock()
}

// LearningReport summarizes the agent's activity over the past week.
type LearningReport struct {
	Since         time.Time      `json:"since"`
	Actions       map[string]int `json:"actions"`
	Notifications map[string]int `json:"notifications"`
	DeliveryRate  float64        `json:"delivery_rate"`
}

// LearningUpdate aggregates the past week of agent actions and notification
// outcomes, logs them and records the report.
func (a *Agent) LearningUpdate(ctx context.Context) (LearningReport, error) {
	since := a.now().Add(-learningWindow)

	actions, err := a.Actions.CountByType(ctx, since)
	if err != nil {
		return LearningReport{}, fmt.Errorf("agent: failed to count actions: %w", err)
	}
	notifications, err := a.Notifications.CountByStatus(ctx, since)
	if err != nil {
		return LearningReport{}, fmt.Errorf("agent: failed to count notifications: %w", err)
	}

	report := LearningReport{Since: since, Actions: actions, Notifications: notifications}
	sent, failed := notifications[models.NotificationSent], notifications[models.NotificationFailed]
	if sent+failed > 0 {
		report.DeliveryRate = float64(sent) / float64(sent+failed)
	}

	log.WithFields(log.Fields{
		"job":           "weekly-agent-learning",
		"actions":       actions,
		"notifications": notifications,
		"delivery_rate": report.DeliveryRate,
	}).Info("Agent learning analysis completed")

	a.logAction(ctx, models.AgentAction{
		ActionType: ActionLearningUpdate,
		Data: map[string]interface{}{
			"actions":       actions,
			"notifications": notifications,
			"delivery_rate": report.DeliveryRate,
		},
	})
	return report, nil
}

// DeliverDueReminders pushes scheduled reminders whose send time has passed
// and records each delivery outcome. It returns how many were sent.
func (a *Agent) DeliverDueReminders(ctx context.Context) (int, error) {
	due, err := a.Notifications.FindDue(ctx, a.now(), reminderBatch)
	if err != nil {
		return 0, fmt.Errorf("agent: failed to load due reminders: %w", err)
	}

	sent := 0
	for _, n := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		res := a.Notifier.SendPush(ctx, n.UserID, n.Message)
		status := models.NotificationSent
		if !res.OK() {
			status = models.NotificationFailed
		} else {
			sent++
		}
		if err := a.Notifications.UpdateStatus(ctx, n.ID, status, res.Error, res.At); err != nil {
			log.WithField("notification_id", n.ID.Hex()).WithError(err).Warn("Failed to record reminder delivery")
		}
	}
	if len(due) > 0 {
		log.WithFields(log.Fields{"due": len(due), "sent": sent}).Info("Delivered scheduled reminders")
	}
	return sent, nil
}
