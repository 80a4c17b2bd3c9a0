package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/carbuddy/internal/auth"
	"github.com/ukydev/carbuddy/internal/handlers"
	"github.com/ukydev/carbuddy/internal/maintenance"
	"github.com/ukydev/carbuddy/internal/models"
	"github.com/ukydev/carbuddy/internal/retry"
)

var errMileageRejected = errors.New("mileage reading rejected")

var postPolicy = retry.Policy{
	MaxAttempts:     3,
	InitialInterval: 500 * time.Millisecond,
	Multiplier:      2,
	MaxInterval:     5 * time.Second,
}

// settings configure one simulation run.
type settings struct {
	APIURL       string
	Token        string
	VehicleIDs   []string
	Interval     time.Duration
	MilesPerTick float64
	// ServiceChance is the probability that a due service gets done on a tick.
	ServiceChance float64
}

// VehicleState is one simulated car.
type VehicleState struct {
	VehicleID string
	Mileage   float64
	// Miles at which each service type was last done by the simulator.
	LastService map[string]int
}

// Simulator drives cars forward and reports their odometers to the API.
type Simulator struct {
	cfg     settings
	client  *http.Client
	catalog maintenance.Catalog
	policy  retry.Policy

	mu  sync.Mutex
	rng *rand.Rand
}

func newSimulator(cfg settings) *Simulator {
	return &Simulator{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		catalog: maintenance.DefaultCatalog(),
		policy:  postPolicy,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Simulator) float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// drive advances the odometer by roughly MilesPerTick, never backwards.
func (s *Simulator) drive(st *VehicleState) int {
	noise := (s.float()*2 - 1) * 0.3 * s.cfg.MilesPerTick
	st.Mileage += max(0, s.cfg.MilesPerTick+noise)
	return int(st.Mileage)
}

// dueServices lists the catalog services whose mileage interval has passed
// since the simulator last performed them.
func (s *Simulator) dueServices(st *VehicleState) []string {
	var due []string
	for _, entry := range s.catalog.Entries() {
		last, ok := st.LastService[entry.ServiceType]
		if !ok {
			st.LastService[entry.ServiceType] = int(st.Mileage)
			continue
		}
		if int(st.Mileage)-last >= entry.MileageInterval {
			due = append(due, entry.ServiceType)
		}
	}
	return due
}

func (s *Simulator) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.APIURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	return s.client.Do(req)
}

// post sends body and retries transport errors and 5xx answers.
func (s *Simulator) post(ctx context.Context, path string, body interface{}, want int) error {
	_, err := s.policy.Do(ctx, "simulator POST "+path, func(ctx context.Context) error {
		resp, err := s.do(ctx, http.MethodPost, path, body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode == want:
			return nil
		case resp.StatusCode == http.StatusConflict:
			return retry.Permanent(errMileageRejected)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%s returned %d", path, resp.StatusCode)
		default:
			return retry.Permanent(fmt.Errorf("%s returned %d", path, resp.StatusCode))
		}
	})
	return err
}

// currentMileage reads the vehicle's odometer from the status endpoint.
func (s *Simulator) currentMileage(ctx context.Context, vehicleID string) (int, error) {
	resp, err := s.do(ctx, http.MethodGet, "/vehicles/"+vehicleID+"/maintenance/status", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status lookup for %s returned %d", vehicleID, resp.StatusCode)
	}
	var status handlers.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return 0, fmt.Errorf("failed to decode status: %w", err)
	}
	return status.CurrentMileage, nil
}

func (s *Simulator) tick(ctx context.Context, st *VehicleState) {
	mileage := s.drive(st)
	fields := log.Fields{"vehicle_id": st.VehicleID, "mileage": mileage}

	err := s.post(ctx, "/vehicles/"+st.VehicleID+"/mileage", models.MileageReading{Mileage: mileage}, http.StatusOK)
	if errors.Is(err, errMileageRejected) {
		// Someone else moved the odometer further; resync.
		if current, lookupErr := s.currentMileage(ctx, st.VehicleID); lookupErr == nil {
			st.Mileage = float64(current)
		}
		log.WithFields(fields).Warn("Mileage reading rejected, resynced with server")
		return
	}
	if err != nil {
		log.WithFields(fields).WithError(err).Error("Failed to report mileage")
		return
	}
	log.WithFields(fields).Debug("Reported mileage")

	for _, serviceType := range s.dueServices(st) {
		if s.float() >= s.cfg.ServiceChance {
			continue
		}
		req := handlers.RecordServiceRequest{
			ServiceType:      serviceType,
			MileageAtService: mileage,
			Cost:             float64(maintenance.EstimateCost(serviceType).Min),
			ShopName:         "Simulated Auto Care",
		}
		if err := s.post(ctx, "/vehicles/"+st.VehicleID+"/maintenance", req, http.StatusCreated); err != nil {
			log.WithFields(fields).WithError(err).WithField("service_type", serviceType).Error("Failed to record service")
			continue
		}
		st.LastService[serviceType] = mileage
		log.WithFields(fields).WithField("service_type", serviceType).Info("Recorded service")
	}
}

// run drives every vehicle on its own ticker until ctx ends.
func (s *Simulator) run(ctx context.Context, states []*VehicleState) {
	var wg sync.WaitGroup
	for _, st := range states {
		wg.Add(1)
		go func(st *VehicleState) {
			defer wg.Done()
			ticker := time.NewTicker(s.cfg.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.tick(ctx, st)
				}
			}
		}(st)
	}
	wg.Wait()
}

func (s *Simulator) initStates(ctx context.Context) []*VehicleState {
	states := make([]*VehicleState, 0, len(s.cfg.VehicleIDs))
	for _, id := range s.cfg.VehicleIDs {
		mileage, err := s.currentMileage(ctx, id)
		if err != nil {
			log.WithError(err).WithField("vehicle_id", id).Error("Skipping vehicle")
			continue
		}
		states = append(states, &VehicleState{
			VehicleID:   id,
			Mileage:     float64(mileage),
			LastService: make(map[string]int),
		})
	}
	return states
}

func loadSettings(getenv func(string) string) (settings, error) {
	cfg := settings{
		APIURL:        strings.TrimRight(getenv("API_BASE_URL"), "/"),
		Token:         getenv("SIM_AUTH_TOKEN"),
		Interval:      2 * time.Second,
		MilesPerTick:  40,
		ServiceChance: 0.5,
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "http://localhost:8080/api"
	}
	for _, id := range strings.Split(getenv("SIM_VEHICLE_IDS"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.VehicleIDs = append(cfg.VehicleIDs, id)
		}
	}
	if len(cfg.VehicleIDs) == 0 {
		return cfg, errors.New("SIM_VEHICLE_IDS is empty")
	}
	if v := getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			cfg.Interval = time.Duration(n) * time.Second
		}
	}
	if v := getenv("SIM_MILES_PER_TICK"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.MilesPerTick = f
		}
	}

	// Without a token, mint one for the owner using the server's secret.
	if cfg.Token == "" {
		secret, owner := getenv("JWT_SECRET"), getenv("SIM_OWNER_ID")
		if secret == "" || owner == "" {
			return cfg, errors.New("set SIM_AUTH_TOKEN, or JWT_SECRET and SIM_OWNER_ID")
		}
		ownerID, err := primitive.ObjectIDFromHex(owner)
		if err != nil {
			return cfg, fmt.Errorf("invalid SIM_OWNER_ID: %w", err)
		}
		token, err := auth.NewService(secret, 24*time.Hour).GenerateToken(&models.User{ID: ownerID, Role: models.RoleOwner})
		if err != nil {
			return cfg, err
		}
		cfg.Token = token
	}
	return cfg, nil
}

func main() {
	cfg, err := loadSettings(os.Getenv)
	if err != nil {
		log.WithError(err).Fatal("Invalid simulator settings")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"vehicles":       len(cfg.VehicleIDs),
		"api_url":        cfg.APIURL,
		"interval":       cfg.Interval,
		"miles_per_tick": cfg.MilesPerTick,
	}).Info("Starting odometer simulation")

	sim := newSimulator(cfg)
	states := sim.initStates(ctx)
	if len(states) == 0 {
		log.Error("No vehicles could be loaded. Check SIM_VEHICLE_IDS and the token. Exiting.")
		return
	}
	sim.run(ctx, states)
	log.Info("Simulation stopped")
}
