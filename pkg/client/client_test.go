package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/keel/internal/domain/model"
	"github.com/okian/keel/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func writeEnvelope(w http.ResponseWriter, status int, code string, retryable bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":      code,
			"message":   code,
			"retryable": retryable,
		},
	})
}

func trustedSignal() model.VisitSignal {
	return model.VisitSignal{
		Latitude:              37.7763,
		Longitude:             -122.4242,
		ArrivalTime:           time.Date(2026, 8, 30, 12, 15, 0, 0, time.UTC),
		PriorVisitsToMerchant: 5,
		HourOfDay:             12,
	}
}

func TestRetryPolicy(t *testing.T) {
	Convey("Given a client with the default retry policy", t, func() {
		ctx := context.Background()

		Convey("When the server answers a non-retryable error", func() {
			var calls atomic.Int64
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeEnvelope(w, http.StatusBadRequest, "INVALID_COORDINATES", false)
			}))
			defer srv.Close()

			c := New(srv.URL, WithRetryDelay(time.Millisecond))
			_, err := c.ResolveMerchant(ctx, 91, 0)

			Convey("Then exactly one attempt is made", func() {
				So(err, ShouldNotBeNil)
				So(calls.Load(), ShouldEqual, 1)

				var apiErr *APIError
				So(err, ShouldHaveSameTypeAs, apiErr)
			})
		})

		Convey("When the server answers a retryable error every time", func() {
			var calls atomic.Int64
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeEnvelope(w, http.StatusBadGateway, "UPSTREAM_ERROR", true)
			}))
			defer srv.Close()

			c := New(srv.URL, WithRetryDelay(time.Millisecond))
			_, err := c.ResolveMerchant(ctx, 37.77, -122.42)

			Convey("Then three attempts are made before giving up", func() {
				So(err, ShouldNotBeNil)
				So(calls.Load(), ShouldEqual, 3)
			})
		})

		Convey("When the server recovers on the final attempt", func() {
			var calls atomic.Int64
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) < 3 {
					writeEnvelope(w, http.StatusBadGateway, "UPSTREAM_ERROR", true)
					return
				}
				_ = json.NewEncoder(w).Encode(Resolution{Merchant: "Blue Plate", Category: "dining", Confidence: 0.8})
			}))
			defer srv.Close()

			c := New(srv.URL, WithRetryDelay(time.Millisecond))
			res, err := c.ResolveMerchant(ctx, 37.77, -122.42)

			Convey("Then the call succeeds", func() {
				So(err, ShouldBeNil)
				So(calls.Load(), ShouldEqual, 3)
				So(res.Merchant, ShouldEqual, "Blue Plate")
			})
		})

		Convey("When the transport itself fails", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			srv.Close() // connection refused from here on

			c := New(srv.URL, WithRetryDelay(time.Millisecond))
			_, err := c.ResolveMerchant(ctx, 37.77, -122.42)

			Convey("Then the error surfaces after retries", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestSubmitVisit(t *testing.T) {
	Convey("Given a visit submission", t, func() {
		ctx := context.Background()

		Convey("When no idempotency key is given", func() {
			c := New("http://localhost:0")
			_, err := c.SubmitVisit(ctx, "  ", Visit{Lat: 1, Lon: 1})

			Convey("Then the client rejects it locally", func() {
				So(err, ShouldEqual, ErrMissingIdempotencyKey)
			})
		})

		Convey("When the server accepts the event", func() {
			var gotKey atomic.Value
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotKey.Store(r.Header.Get("Idempotency-Key"))
				w.WriteHeader(http.StatusAccepted)
				_ = json.NewEncoder(w).Encode(VisitAck{Status: "accepted"})
			}))
			defer srv.Close()

			c := New(srv.URL)
			ack, err := c.SubmitVisit(ctx, "visit-1", Visit{Lat: 37.77, Lon: -122.42})

			Convey("Then the key header travels with the request", func() {
				So(err, ShouldBeNil)
				So(ack.Status, ShouldEqual, "accepted")
				So(gotKey.Load(), ShouldEqual, "visit-1")
			})
		})
	})
}

func TestRecommend(t *testing.T) {
	Convey("Given the composed recommend flow", t, func() {
		ctx := context.Background()

		Convey("When the visit signal is below the confidence gate", func() {
			var calls atomic.Int64
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
			}))
			defer srv.Close()

			signal := model.VisitSignal{HourOfDay: 15}

			c := New(srv.URL)
			outcome, err := c.Recommend(ctx, "visit-low", signal, []string{"Amex Gold"})

			Convey("Then the outcome defers without emitting any event", func() {
				So(err, ShouldBeNil)
				So(outcome.Status, ShouldEqual, OutcomeDeferred)
				So(outcome.Confidence, ShouldBeLessThan, 0.6)
				So(calls.Load(), ShouldEqual, 0)
			})
		})

		Convey("When the full pipeline succeeds", func() {
			var scoreReq atomic.Value
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/v1/events/visit":
					w.WriteHeader(http.StatusAccepted)
					_ = json.NewEncoder(w).Encode(VisitAck{Status: "accepted"})
				case "/v1/merchant/resolve":
					_ = json.NewEncoder(w).Encode(Resolution{Merchant: "Blue Plate", MCC: "5812", Category: "dining", Confidence: 0.8})
				case "/v1/config":
					_ = json.NewEncoder(w).Encode(ServiceConfig{RewardsVersion: "1.0", MinConfidence: 0.5})
				case "/v1/score":
					var req ScoreRequest
					_ = json.NewDecoder(r.Body).Decode(&req)
					scoreReq.Store(req)
					_ = json.NewEncoder(w).Encode(ScoreResult{
						Top:              []CardScore{{Card: "Citi Custom Cash", Score: 5, Reason: "5x dining"}},
						UsedRulesVersion: "1.0",
					})
				default:
					http.NotFound(w, r)
				}
			}))
			defer srv.Close()

			c := New(srv.URL)
			outcome, err := c.Recommend(ctx, "visit-ok", trustedSignal(), []string{"Citi Custom Cash", "Amex Gold"})

			Convey("Then a ranked recommendation comes back", func() {
				So(err, ShouldBeNil)
				So(outcome.Status, ShouldEqual, OutcomeRecommended)
				So(outcome.Merchant, ShouldEqual, "Blue Plate")
				So(outcome.Top, ShouldHaveLength, 1)
				So(outcome.Top[0].Card, ShouldEqual, "Citi Custom Cash")
				So(outcome.UsedRulesVersion, ShouldEqual, "1.0")

				req, _ := scoreReq.Load().(ScoreRequest)
				So(req.Merchant, ShouldEqual, "Blue Plate")
				So(req.Cards, ShouldResemble, []string{"Citi Custom Cash", "Amex Gold"})
			})
		})

		Convey("When resolution confidence is below the service floor", func() {
			var scoreReq atomic.Value
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/v1/events/visit":
					w.WriteHeader(http.StatusAccepted)
					_ = json.NewEncoder(w).Encode(VisitAck{Status: "accepted"})
				case "/v1/merchant/resolve":
					_ = json.NewEncoder(w).Encode(Resolution{Merchant: "Maybe Cafe", Category: "dining", Confidence: 0.3})
				case "/v1/config":
					_ = json.NewEncoder(w).Encode(ServiceConfig{MinConfidence: 0.5})
				case "/v1/score":
					var req ScoreRequest
					_ = json.NewDecoder(r.Body).Decode(&req)
					scoreReq.Store(req)
					_ = json.NewEncoder(w).Encode(ScoreResult{UsedRulesVersion: "1.0"})
				default:
					http.NotFound(w, r)
				}
			}))
			defer srv.Close()

			c := New(srv.URL)
			outcome, err := c.Recommend(ctx, "visit-fuzzy", trustedSignal(), nil)

			Convey("Then ranking falls back to category only", func() {
				So(err, ShouldBeNil)
				So(outcome.Status, ShouldEqual, OutcomeRecommended)
				So(outcome.Merchant, ShouldBeEmpty)
				So(outcome.Category, ShouldEqual, "dining")

				req, _ := scoreReq.Load().(ScoreRequest)
				So(req.Merchant, ShouldBeEmpty)
				So(req.Category, ShouldEqual, "dining")
			})
		})

		Convey("When no merchant exists at the location", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/v1/events/visit":
					w.WriteHeader(http.StatusAccepted)
					_ = json.NewEncoder(w).Encode(VisitAck{Status: "accepted"})
				case "/v1/merchant/resolve":
					writeEnvelope(w, http.StatusNotFound, "NO_MERCHANTS_FOUND", false)
				default:
					http.NotFound(w, r)
				}
			}))
			defer srv.Close()

			c := New(srv.URL)
			_, err := c.Recommend(ctx, "visit-nowhere", trustedSignal(), nil)

			Convey("Then the terminal no-recommendation error surfaces", func() {
				So(err, ShouldNotBeNil)
				So(err, ShouldWrap, ErrNoRecommendation)
			})
		})
	})
}
