// Package places finds nearby repair shops through the Google Places web
// service.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ukydev/carbuddy/internal/models"
)

// ErrMissingAPIKey is returned when no Maps API key is configured.
var ErrMissingAPIKey = errors.New("places: GOOGLE_MAPS_API_KEY is not set")

const (
	earthRadiusMiles = 3959.0
	metersPerMile    = 1609.34
	maxRadiusMeters  = 50000
	detailFields     = "name,rating,formatted_phone_number,website,opening_hours,reviews"
	detailWorkers    = 4
	recentReviews    = 3
)

// ReviewSummary condenses a shop's most recent reviews.
type ReviewSummary struct {
	RecentRating *float64 `json:"recent_rating,omitempty"`
	RecentCount  int      `json:"recent_count"`
	Summary      string   `json:"summary"`
}

// Shop is a repair shop near the user.
type Shop struct {
	PlaceID       string        `json:"place_id"`
	Name          string        `json:"name"`
	Rating        float64       `json:"rating"`
	PriceLevel    int           `json:"price_level"`
	Address       string        `json:"address"`
	Phone         string        `json:"phone,omitempty"`
	Website       string        `json:"website,omitempty"`
	IsOpen        bool          `json:"is_open"`
	DistanceMiles float64       `json:"distance_miles"`
	Reviews       ReviewSummary `json:"reviews_summary"`
}

// Review is a single place review.
type Review struct {
	Rating float64 `json:"rating"`
	Time   int64   `json:"time"`
	Text   string  `json:"text"`
}

// Client talks to the Places API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Places client. baseURL is normally
// https://maps.googleapis.com/maps/api/place.
func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type nearbyResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		PlaceID    string  `json:"place_id"`
		Name       string  `json:"name"`
		Rating     float64 `json:"rating"`
		PriceLevel int     `json:"price_level"`
		Vicinity   string  `json:"vicinity"`
		Geometry   struct {
			Location latLng `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

type detailsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Result       struct {
		Name                 string  `json:"name"`
		Rating               float64 `json:"rating"`
		FormattedPhoneNumber string  `json:"formatted_phone_number"`
		Website              string  `json:"website"`
		OpeningHours         *struct {
			OpenNow bool `json:"open_now"`
		} `json:"opening_hours"`
		Reviews []Review `json:"reviews"`
	} `json:"result"`
}

// FindNearby returns repair shops within radiusMiles of loc that match
// serviceType, in the order the API returned them. A failed detail lookup
// keeps the shop with its search data only.
func (c *Client) FindNearby(ctx context.Context, loc models.Location, serviceType string, radiusMiles float64) ([]Shop, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	radius := math.Min(radiusMiles*metersPerMile, maxRadiusMeters)
	q := url.Values{}
	q.Set("location", fmt.Sprintf("%f,%f", loc.Lat, loc.Lon))
	q.Set("radius", fmt.Sprintf("%.0f", radius))
	q.Set("type", "car_repair")
	q.Set("keyword", "auto repair "+strings.ReplaceAll(serviceType, "_", " "))

	var nearby nearbyResponse
	if err := c.get(ctx, "/nearbysearch/json", q, &nearby); err != nil {
		return nil, err
	}
	if err := apiStatus(nearby.Status, nearby.ErrorMessage); err != nil {
		return nil, err
	}

	shops := make([]Shop, len(nearby.Results))
	for i, r := range nearby.Results {
		shops[i] = Shop{
			PlaceID:       r.PlaceID,
			Name:          r.Name,
			Rating:        r.Rating,
			PriceLevel:    r.PriceLevel,
			Address:       r.Vicinity,
			DistanceMiles: DistanceMiles(loc, models.Location{Lat: r.Geometry.Location.Lat, Lon: r.Geometry.Location.Lng}),
			Reviews:       SummarizeReviews(nil),
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailWorkers)
	for i := range shops {
		shop := &shops[i]
		g.Go(func() error {
			if err := c.fillDetails(gctx, shop); err != nil {
				log.WithFields(log.Fields{"place_id": shop.PlaceID}).WithError(err).Warn("Place details lookup failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	return shops, nil
}

func (c *Client) fillDetails(ctx context.Context, shop *Shop) error {
	q := url.Values{}
	q.Set("place_id", shop.PlaceID)
	q.Set("fields", detailFields)

	var details detailsResponse
	if err := c.get(ctx, "/details/json", q, &details); err != nil {
		return err
	}
	if err := apiStatus(details.Status, details.ErrorMessage); err != nil {
		return err
	}

	d := details.Result
	shop.Phone = d.FormattedPhoneNumber
	shop.Website = d.Website
	shop.IsOpen = d.OpeningHours != nil && d.OpeningHours.OpenNow
	shop.Reviews = SummarizeReviews(d.Reviews)
	return nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	q.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("places: failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("places: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("places: unexpected status %d from %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("places: failed to decode response: %w", err)
	}
	return nil
}

func apiStatus(status, message string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	}
	if message != "" {
		return fmt.Errorf("places: %s: %s", status, message)
	}
	return fmt.Errorf("places: %s", status)
}

// DistanceMiles is the great-circle distance between a and b, rounded to a
// tenth of a mile.
func DistanceMiles(a, b models.Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	d := earthRadiusMiles * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return math.Round(d*10) / 10
}

// SummarizeReviews averages the three most recent reviews.
func SummarizeReviews(reviews []Review) ReviewSummary {
	if len(reviews) == 0 {
		return ReviewSummary{Summary: "No reviews available"}
	}

	recent := make([]Review, len(reviews))
	copy(recent, reviews)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Time > recent[j].Time })
	if len(recent) > recentReviews {
		recent = recent[:recentReviews]
	}

	var sum float64
	for _, r := range recent {
		sum += r.Rating
	}
	avg := math.Round(sum/float64(len(recent))*10) / 10
	return ReviewSummary{
		RecentRating: &avg,
		RecentCount:  len(recent),
		Summary:      fmt.Sprintf("Recent average: %.1f/5 from %d reviews", avg, len(recent)),
	}
}

// Rank orders shops by rating, best first, then by distance. Ties keep their
// input order.
func Rank(shops []Shop) []Shop {
	out := make([]Shop, len(shops))
	copy(out, shops)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].DistanceMiles < out[j].DistanceMiles
	})
	return out
}

// FormatShops renders the first n shops as a numbered list.
func FormatShops(shops []Shop, n int) string {
	if len(shops) == 0 {
		return "I couldn't find any mechanics in your area right now."
	}
	if n > 0 && len(shops) > n {
		shops = shops[:n]
	}

	lines := make([]string, 0, len(shops))
	for i, s := range shops {
		name := s.Name
		if name == "" {
			name = "Unknown Shop"
		}
		line := fmt.Sprintf("%d. %s", i+1, name)
		if s.Rating > 0 {
			line += fmt.Sprintf(" (%.1f★)", s.Rating)
		}
		if s.DistanceMiles > 0 {
			line += fmt.Sprintf(" - %.1f miles away", s.DistanceMiles)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
