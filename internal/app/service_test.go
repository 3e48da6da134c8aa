package service

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/keel/internal/adapters/places"
	"github.com/okian/keel/internal/domain/model"
	"github.com/okian/keel/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type fakeResolver struct {
	resolution model.MerchantResolution
	resolveErr error
	category   string
	mcc        string
	fallErr    error

	block chan struct{} // when set, Resolve blocks until closed

	resolveCalls  atomic.Int64
	fallbackCalls atomic.Int64
}

func (f *fakeResolver) Resolve(ctx context.Context, _, _ float64) (model.MerchantResolution, error) {
	f.resolveCalls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return model.MerchantResolution{}, ctx.Err()
		}
	}
	if f.resolveErr != nil {
		return model.MerchantResolution{}, f.resolveErr
	}
	return f.resolution, nil
}

func (f *fakeResolver) ResolveCategory(_ context.Context, _, _ float64) (string, string, error) {
	f.fallbackCalls.Add(1)
	if f.fallErr != nil {
		return "", "", f.fallErr
	}
	return f.category, f.mcc, nil
}

func visitEvent(key string) model.VisitEvent {
	return model.VisitEvent{
		IdempotencyKey: key,
		Latitude:       37.7763,
		Longitude:      -122.4242,
		Timestamp:      time.Now(),
	}
}

func waitForResult(svc *Service, key string, timeout time.Duration) (model.RecommendationResult, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if result, ok := svc.Recommendation(context.Background(), key); ok {
			return result, true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return model.RecommendationResult{}, false
}

func TestServicePipeline(t *testing.T) {
	Convey("Given a started service with a resolvable merchant", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		resolver := &fakeResolver{
			resolution: model.MerchantResolution{
				Merchant:   "Blue Plate",
				MCC:        "5812",
				Category:   "dining",
				Confidence: 0.8,
			},
		}
		svc := New(
			WithWorkerCount(2),
			WithQueueSize(64),
			WithResolver(resolver),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		Convey("When a visit is ingested", func() {
			status, err := svc.IngestVisit(ctx, visitEvent("visit-1"))

			So(err, ShouldBeNil)
			So(status, ShouldEqual, IngestAccepted)

			Convey("Then the pipeline produces a ranked recommendation", func() {
				result, ok := waitForResult(svc, "visit-1", 2*time.Second)

				So(ok, ShouldBeTrue)
				So(result.Resolution.Merchant, ShouldEqual, "Blue Plate")
				So(result.Fallback, ShouldBeFalse)
				So(result.RulesVersion, ShouldEqual, "1.0")
				So(len(result.Top), ShouldBeGreaterThan, 0)
				So(result.Top[0].Card, ShouldEqual, "Citi Custom Cash")
				So(result.Top[0].Reason, ShouldEqual, "5x dining")
			})

			Convey("And when the same key is submitted again", func() {
				_, _ = waitForResult(svc, "visit-1", 2*time.Second)
				status, err := svc.IngestVisit(ctx, visitEvent("visit-1"))

				Convey("Then it is reported as a duplicate and not reprocessed", func() {
					So(err, ShouldBeNil)
					So(status, ShouldEqual, IngestDuplicate)
					So(resolver.resolveCalls.Load(), ShouldEqual, 1)
				})
			})
		})

		Convey("When a visit has out-of-range coordinates", func() {
			e := visitEvent("visit-bad")
			e.Latitude = 91

			_, err := svc.IngestVisit(ctx, e)

			Convey("Then ingest fails before touching the key store", func() {
				So(err, ShouldNotBeNil)
				So(err, ShouldWrap, places.ErrInvalidCoordinates)

				status, serr := svc.IngestVisit(ctx, visitEvent("visit-bad"))
				So(serr, ShouldBeNil)
				So(status, ShouldEqual, IngestAccepted)
			})
		})
	})

	Convey("Given a service whose resolver finds no merchant", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		resolver := &fakeResolver{
			resolveErr: places.ErrNoMerchants,
			category:   "gas",
			mcc:        "5541",
		}
		svc := New(WithWorkerCount(1), WithResolver(resolver))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		Convey("When a visit is ingested", func() {
			status, err := svc.IngestVisit(ctx, visitEvent("visit-fb"))
			So(err, ShouldBeNil)
			So(status, ShouldEqual, IngestAccepted)

			Convey("Then the category fallback produces a merchant-less result", func() {
				result, ok := waitForResult(svc, "visit-fb", 2*time.Second)

				So(ok, ShouldBeTrue)
				So(result.Fallback, ShouldBeTrue)
				So(result.Resolution.Merchant, ShouldBeEmpty)
				So(result.Resolution.Category, ShouldEqual, "gas")
				So(resolver.fallbackCalls.Load(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a service whose resolver fails on both paths", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		resolver := &fakeResolver{
			resolveErr: places.ErrNoMerchants,
			fallErr:    places.ErrNoMerchants,
		}
		svc := New(WithWorkerCount(1), WithResolver(resolver))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		Convey("When a visit is ingested", func() {
			status, err := svc.IngestVisit(ctx, visitEvent("visit-none"))
			So(err, ShouldBeNil)
			So(status, ShouldEqual, IngestAccepted)

			Convey("Then no recommendation is stored and the fallback ran once", func() {
				_, ok := waitForResult(svc, "visit-none", 300*time.Millisecond)
				So(ok, ShouldBeFalse)
				So(resolver.fallbackCalls.Load(), ShouldEqual, 1)
			})
		})
	})
}

func TestServiceBackpressure(t *testing.T) {
	Convey("Given a service with a tiny queue and a stuck resolver", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		block := make(chan struct{})
		resolver := &fakeResolver{
			resolution: model.MerchantResolution{Merchant: "Corner Cafe", Category: "dining", Confidence: 0.8},
			block:      block,
		}
		unblock := sync.OnceFunc(func() { close(block) })
		svc := New(
			WithWorkerCount(1),
			WithQueueSize(1),
			WithResolver(resolver),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() {
			unblock()
			svc.Stop(ctx)
		}()

		Convey("When visits are submitted until the queue rejects one", func() {
			// One event can sit in the stuck worker, one in the dequeue pipe
			// and one in the buffer, so a handful of submissions must hit
			// the capacity limit.
			rejectedKey := ""
			var err error
			for i := 0; i < 10; i++ {
				key := "busy-" + strconv.Itoa(i)
				_, err = svc.IngestVisit(ctx, visitEvent(key))
				if err != nil {
					rejectedKey = key
					break
				}
			}

			So(err, ShouldEqual, ErrQueueFull)
			So(rejectedKey, ShouldNotBeEmpty)

			Convey("Then the rejected key is released and accepted after drain", func() {
				unblock()

				deadline := time.Now().Add(2 * time.Second)
				for svc.Stats(ctx).QueueDepth > 0 && time.Now().Before(deadline) {
					time.Sleep(10 * time.Millisecond)
				}

				status, err := svc.IngestVisit(ctx, visitEvent(rejectedKey))
				So(err, ShouldBeNil)
				So(status, ShouldEqual, IngestAccepted)
			})
		})
	})
}

func TestServiceStatsAndConfig(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		svc := New(
			WithWorkerCount(2),
			WithResolver(&fakeResolver{resolution: model.MerchantResolution{Merchant: "m", Category: "dining"}}),
			WithMinConfidence(0.6),
			WithRadiusMeters(150),
			WithModelVersion("visit-confidence-3"),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		Convey("Then ConfigInfo reflects the live configuration", func() {
			info := svc.ConfigInfo(ctx)
			So(info.RewardsVersion, ShouldEqual, "1.0")
			So(info.ModelVersion, ShouldEqual, "visit-confidence-3")
			So(info.MinConfidence, ShouldEqual, 0.6)
			So(info.RadiusMeters, ShouldEqual, 150)
		})

		Convey("Then Stats reports workers and key counts", func() {
			status, err := svc.IngestVisit(ctx, visitEvent("stats-1"))
			So(err, ShouldBeNil)
			So(status, ShouldEqual, IngestAccepted)

			stats := svc.Stats(ctx)
			So(stats.Workers, ShouldEqual, 2)
			So(stats.IdempotencyKeys, ShouldEqual, 1)
			So(stats.RulesVersion, ShouldEqual, "1.0")
		})
	})
}

func TestServiceConcurrentIngest(t *testing.T) {
	Convey("Given concurrent submissions of the same idempotency key", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		resolver := &fakeResolver{
			resolution: model.MerchantResolution{Merchant: "m", Category: "dining", Confidence: 0.8},
		}
		svc := New(WithWorkerCount(2), WithResolver(resolver))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		Convey("When 32 goroutines race on one key", func() {
			var accepted atomic.Int64
			var wg sync.WaitGroup
			start := make(chan struct{})

			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					status, err := svc.IngestVisit(ctx, visitEvent("race-key"))
					if err == nil && status == IngestAccepted {
						accepted.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()

			Convey("Then exactly one submission wins", func() {
				So(accepted.Load(), ShouldEqual, 1)

				_, ok := waitForResult(svc, "race-key", 2*time.Second)
				So(ok, ShouldBeTrue)
				So(resolver.resolveCalls.Load(), ShouldEqual, 1)
			})
		})
	})
}
