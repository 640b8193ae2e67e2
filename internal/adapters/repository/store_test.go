package repository_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smartystreets/goconvey/convey"

	"github.com/quotewire/pulse/internal/adapters/repository"
	"github.com/quotewire/pulse/internal/domain/model"
	"github.com/quotewire/pulse/internal/domain/registry"
	"github.com/quotewire/pulse/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

func testDefaults() registry.Defaults {
	return registry.Defaults{
		Floor:           100,
		Ceiling:         500,
		AmbientTrigger:  7 * time.Minute,
		AmbientCooldown: 10 * time.Minute,
		AmbientRate:     0.02,
		SignalWindow:    time.Hour,
		NotifyDropPct:   0.15,
		LastCallWindow:  4 * time.Hour,
		LastCallSlots:   2,
	}
}

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	store, err := repository.New(context.Background(),
		filepath.Join(t.TempDir(), "pulse_test.db"), testDefaults())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newOpportunity(deadline time.Time) *model.Opportunity {
	return &model.Opportunity{
		ID:             uuid.NewString(),
		OutletID:       "outlet-1",
		Title:          "Expert comment on market outlook",
		Tier:           "standard",
		Deadline:       deadline,
		CurrentPrice:   150,
		InventoryLevel: 3,
	}
}

func tickCommitFor(o *model.Opportunity, price float64) repository.TickCommit {
	return repository.TickCommit{
		OpportunityID:   o.ID,
		ExpectedVersion: o.Version,
		NewPrice:        price,
		PriceMoved:      price != o.CurrentPrice,
		Snapshot: model.PriceSnapshot{
			ID:             uuid.NewString(),
			OpportunityID:  o.ID,
			SuggestedPrice: price,
			Payload:        model.SnapshotPayload{PriorPrice: o.CurrentPrice, Delta: price - o.CurrentPrice, Source: "tick"},
			TickTime:       time.Now(),
		},
	}
}

func TestStore_Opportunities(t *testing.T) {
	convey.Convey("Given an open store", t, func() {
		ctx := context.Background()
		store := newTestStore(t)
		now := time.Now()

		convey.Convey("When an opportunity is created", func() {
			o := newOpportunity(now.Add(24 * time.Hour))
			convey.So(store.CreateOpportunity(ctx, o), convey.ShouldBeNil)

			convey.Convey("Then it round-trips", func() {
				got, err := store.GetOpportunity(ctx, o.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(got.ID, convey.ShouldEqual, o.ID)
				convey.So(got.CurrentPrice, convey.ShouldEqual, 150)
				convey.So(got.Status, convey.ShouldEqual, model.StatusOpen)
				convey.So(got.Version, convey.ShouldEqual, 1)
			})

			convey.Convey("And it appears in the open listing", func() {
				open, err := store.ListOpen(ctx, now)
				convey.So(err, convey.ShouldBeNil)
				convey.So(open, convey.ShouldHaveLength, 1)
			})
		})

		convey.Convey("When looking up a missing id", func() {
			_, err := store.GetOpportunity(ctx, "nope")

			convey.Convey("Then it reports not found", func() {
				convey.So(err, convey.ShouldWrap, repository.ErrNotFound)
			})
		})

		convey.Convey("When an opportunity's deadline has passed", func() {
			o := newOpportunity(now.Add(-time.Minute))
			convey.So(store.CreateOpportunity(ctx, o), convey.ShouldBeNil)

			convey.Convey("Then it is excluded from the open listing", func() {
				open, err := store.ListOpen(ctx, now)
				convey.So(err, convey.ShouldBeNil)
				convey.So(open, convey.ShouldBeEmpty)
			})
		})
	})
}

func TestStore_CommitTick(t *testing.T) {
	convey.Convey("Given a store with one open opportunity", t, func() {
		ctx := context.Background()
		store := newTestStore(t)
		o := newOpportunity(time.Now().Add(24 * time.Hour))
		convey.So(store.CreateOpportunity(ctx, o), convey.ShouldBeNil)

		convey.Convey("When a tick commits a new price", func() {
			err := store.CommitTick(ctx, tickCommitFor(o, 192))

			convey.Convey("Then the price, version, and snapshot land atomically", func() {
				convey.So(err, convey.ShouldBeNil)

				got, err := store.GetOpportunity(ctx, o.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(got.CurrentPrice, convey.ShouldEqual, 192)
				convey.So(got.Version, convey.ShouldEqual, 2)

				n, err := store.SnapshotCount(ctx, o.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(n, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When a commit uses a stale version", func() {
			convey.So(store.CommitTick(ctx, tickCommitFor(o, 192)), convey.ShouldBeNil)

			stale := tickCommitFor(o, 200) // still ExpectedVersion 1
			err := store.CommitTick(ctx, stale)

			convey.Convey("Then it fails with a version conflict and writes nothing", func() {
				convey.So(err, convey.ShouldWrap, repository.ErrConflict)

				n, snapErr := store.SnapshotCount(ctx, o.ID)
				convey.So(snapErr, convey.ShouldBeNil)
				convey.So(n, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the opportunity has been closed", func() {
			_, err := store.CloseExpired(ctx, o.Deadline.Add(time.Minute))
			convey.So(err, convey.ShouldBeNil)

			commitErr := store.CommitTick(ctx, tickCommitFor(o, 192))

			convey.Convey("Then the commit is rejected as closed", func() {
				convey.So(commitErr, convey.ShouldWrap, repository.ErrClosed)
			})
		})

		convey.Convey("When the opportunity does not exist", func() {
			commit := tickCommitFor(o, 192)
			commit.OpportunityID = "ghost"
			err := store.CommitTick(ctx, commit)

			convey.Convey("Then the commit reports not found", func() {
				convey.So(err, convey.ShouldWrap, repository.ErrNotFound)
			})
		})
	})
}

func TestStore_ApplyPriceUpdate(t *testing.T) {
	convey.Convey("Given a store with one open opportunity", t, func() {
		ctx := context.Background()
		store := newTestStore(t)
		o := newOpportunity(time.Now().Add(24 * time.Hour))
		convey.So(store.CreateOpportunity(ctx, o), convey.ShouldBeNil)

		convey.Convey("When a price update is applied", func() {
			updated, err := store.ApplyPriceUpdate(ctx, o.ID, 180,
				model.SnapshotPayload{Source: "ingress"}, uuid.NewString())

			convey.Convey("Then the price changes and one snapshot is appended", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(updated.CurrentPrice, convey.ShouldEqual, 180)
				convey.So(updated.Version, convey.ShouldEqual, 2)

				n, err := store.SnapshotCount(ctx, o.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(n, convey.ShouldEqual, 1)

				snaps, err := store.Snapshots(ctx, o.ID, 10)
				convey.So(err, convey.ShouldBeNil)
				convey.So(snaps[0].Payload.Source, convey.ShouldEqual, "ingress")
				convey.So(snaps[0].Payload.PriorPrice, convey.ShouldEqual, 150)
			})
		})

		convey.Convey("When the opportunity is closed", func() {
			_, err := store.CloseExpired(ctx, o.Deadline.Add(time.Minute))
			convey.So(err, convey.ShouldBeNil)

			_, updErr := store.ApplyPriceUpdate(ctx, o.ID, 180,
				model.SnapshotPayload{Source: "ingress"}, uuid.NewString())

			convey.Convey("Then the update is rejected", func() {
				convey.So(updErr, convey.ShouldWrap, repository.ErrClosed)
			})
		})
	})
}

func TestStore_CloseExpired(t *testing.T) {
	convey.Convey("Given expired and live opportunities", t, func() {
		ctx := context.Background()
		store := newTestStore(t)
		now := time.Now()

		expired := newOpportunity(now.Add(-time.Hour))
		live := newOpportunity(now.Add(time.Hour))
		convey.So(store.CreateOpportunity(ctx, expired), convey.ShouldBeNil)
		convey.So(store.CreateOpportunity(ctx, live), convey.ShouldBeNil)

		convey.Convey("When the sweep runs", func() {
			closed, err := store.CloseExpired(ctx, now)

			convey.Convey("Then only the expired one closes, freezing its price", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(closed, convey.ShouldResemble, []string{expired.ID})

				got, err := store.GetOpportunity(ctx, expired.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(got.Status, convey.ShouldEqual, model.StatusClosed)
				convey.So(got.LastPrice, convey.ShouldEqual, got.CurrentPrice)
				convey.So(got.ClosedAt, convey.ShouldNotBeNil)
			})

			convey.Convey("And re-running the sweep is a no-op", func() {
				again, err := store.CloseExpired(ctx, now)
				convey.So(err, convey.ShouldBeNil)
				convey.So(again, convey.ShouldBeEmpty)
			})
		})
	})
}

func TestStore_Signals(t *testing.T) {
	convey.Convey("Given an opportunity with recorded signals", t, func() {
		ctx := context.Background()
		store := newTestStore(t)
		now := time.Now()
		o := newOpportunity(now.Add(24 * time.Hour))
		convey.So(store.CreateOpportunity(ctx, o), convey.ShouldBeNil)

		convey.Convey("When clicks land inside and outside the window", func() {
			for _, age := range []time.Duration{time.Minute, 30 * time.Minute, 2 * time.Hour} {
				err := store.AppendClick(ctx, model.ClickEvent{
					ID:            uuid.NewString(),
					OpportunityID: o.ID,
					ClickedAt:     now.Add(-age),
				})
				convey.So(err, convey.ShouldBeNil)
			}

			n, err := store.CountClicks(ctx, o.ID, now.Add(-time.Hour))

			convey.Convey("Then only windowed clicks count", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(n, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When pitches of mixed status exist", func() {
			pitches := []model.Pitch{
				{ID: "p1", OpportunityID: o.ID, UserID: "u1", Status: model.PitchActive, Successful: true, CreatedAt: now.Add(-time.Minute)},
				{ID: "p2", OpportunityID: o.ID, UserID: "u2", Status: model.PitchDraft, CreatedAt: now.Add(-time.Minute)},
				{ID: "p3", OpportunityID: o.ID, UserID: "u3", Status: model.PitchWithdrawn, CreatedAt: now.Add(-time.Minute)},
				{ID: "p4", OpportunityID: o.ID, UserID: "u1", Status: model.PitchActive, CreatedAt: now.Add(-2 * time.Hour)},
			}
			for _, p := range pitches {
				convey.So(store.UpsertPitch(ctx, p), convey.ShouldBeNil)
			}

			convey.Convey("Then recent counts exclude withdrawn and stale pitches", func() {
				n, err := store.CountRecentPitches(ctx, o.ID, now.Add(-time.Hour))
				convey.So(err, convey.ShouldBeNil)
				convey.So(n, convey.ShouldEqual, 2)
			})

			convey.Convey("And outlet conversion counts successes over non-withdrawn", func() {
				successful, total, err := store.OutletConversion(ctx, o.OutletID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(successful, convey.ShouldEqual, 1)
				convey.So(total, convey.ShouldEqual, 3)
			})

			convey.Convey("And interested users are distinct non-withdrawn pitchers", func() {
				users, err := store.InterestedUsers(ctx, o.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(users, convey.ShouldResemble, []string{"u1", "u2"})
			})
		})

		convey.Convey("When counting the outlet's other open opportunities", func() {
			sibling := newOpportunity(now.Add(24 * time.Hour))
			convey.So(store.CreateOpportunity(ctx, sibling), convey.ShouldBeNil)

			n, err := store.OutletOpenCount(ctx, o.OutletID, o.ID, now)

			convey.Convey("Then the opportunity itself is excluded", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(n, convey.ShouldEqual, 1)
			})
		})
	})
}

func TestStore_PushSubscriptions(t *testing.T) {
	convey.Convey("Given stored push subscriptions", t, func() {
		ctx := context.Background()
		store := newTestStore(t)

		convey.So(store.UpsertPushSubscription(ctx, model.PushSubscription{UserID: "u1", Endpoint: "https://push/1"}), convey.ShouldBeNil)
		convey.So(store.UpsertPushSubscription(ctx, model.PushSubscription{UserID: "u2", Endpoint: "https://push/2"}), convey.ShouldBeNil)

		convey.Convey("When fetched for a user set", func() {
			subs, err := store.PushSubscriptions(ctx, []string{"u1", "u2", "u3"})

			convey.Convey("Then only subscribed users are returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(subs, convey.ShouldHaveLength, 2)
			})
		})

		convey.Convey("When an endpoint is replaced", func() {
			convey.So(store.UpsertPushSubscription(ctx, model.PushSubscription{UserID: "u1", Endpoint: "https://push/new"}), convey.ShouldBeNil)

			subs, err := store.PushSubscriptions(ctx, []string{"u1"})
			convey.So(err, convey.ShouldBeNil)
			convey.So(subs[0].Endpoint, convey.ShouldEqual, "https://push/new")
		})

		convey.Convey("When a subscription is pruned", func() {
			convey.So(store.PrunePushSubscription(ctx, "u1"), convey.ShouldBeNil)

			subs, err := store.PushSubscriptions(ctx, []string{"u1"})
			convey.So(err, convey.ShouldBeNil)
			convey.So(subs, convey.ShouldBeEmpty)
		})
	})
}

func TestStore_SeedVariables(t *testing.T) {
	convey.Convey("Given a database where an operator tuned a seeded weight", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "pulse_seed.db")

		first, err := repository.New(ctx, path, testDefaults())
		convey.So(err, convey.ShouldBeNil)
		convey.So(first.UpsertVariable(ctx, registry.Variable{Name: registry.VarClickBoost, Weight: 99}), convey.ShouldBeNil)
		convey.So(first.Close(), convey.ShouldBeNil)

		convey.Convey("When the database is reopened", func() {
			second, err := repository.New(ctx, path, testDefaults())
			convey.So(err, convey.ShouldBeNil)
			defer func() { _ = second.Close() }()

			snap, err := second.Load(ctx)

			convey.Convey("Then the tuned row survives reseeding", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(snap.Variables[registry.VarClickBoost].Weight, convey.ShouldEqual, 99)
				convey.So(snap.Variables[registry.VarOutletLoad].NonlinearFn, convey.ShouldEqual, "log1p")
				convey.So(snap.Variables, convey.ShouldHaveLength, len(registry.DefaultVariables()))
			})
		})
	})
}

func TestStore_RegistryLoad(t *testing.T) {
	convey.Convey("Given a store with fallback defaults", t, func() {
		ctx := context.Background()
		store := newTestStore(t)

		convey.Convey("When the store is freshly created", func() {
			snap, err := store.Load(ctx)

			convey.Convey("Then the snapshot carries the defaults and the seeded weights", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(snap.Floor, convey.ShouldEqual, 100)
				convey.So(snap.Ceiling, convey.ShouldEqual, 500)
				convey.So(snap.AmbientRate, convey.ShouldEqual, 0.02)
				convey.So(snap.Variables, convey.ShouldHaveLength, len(registry.DefaultVariables()))
				convey.So(snap.Variables[registry.VarClickBoost].Weight, convey.ShouldEqual, 12)
				convey.So(snap.Variables[registry.VarBaselineDecay].Weight, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When variables and config rows exist", func() {
			convey.So(store.UpsertVariable(ctx, registry.Variable{Name: registry.VarClickBoost, Weight: 15}), convey.ShouldBeNil)
			convey.So(store.UpsertVariable(ctx, registry.Variable{Name: registry.VarPitchVelocity, Weight: 10, NonlinearFn: "log1p"}), convey.ShouldBeNil)
			convey.So(store.UpsertConfig(ctx, registry.KeyPriceCeiling, "800"), convey.ShouldBeNil)
			convey.So(store.UpsertConfig(ctx, registry.KeyAmbientTriggerMins, "5"), convey.ShouldBeNil)

			snap, err := store.Load(ctx)

			convey.Convey("Then the snapshot reflects the store", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(snap.Variables[registry.VarClickBoost].Weight, convey.ShouldEqual, 15)
				convey.So(snap.Variables[registry.VarPitchVelocity].NonlinearFn, convey.ShouldEqual, "log1p")
				convey.So(snap.Ceiling, convey.ShouldEqual, 800)
				convey.So(snap.AmbientTrigger, convey.ShouldEqual, 5*time.Minute)
			})

			convey.Convey("And a replaced variable weight shows up on the next load", func() {
				convey.So(store.UpsertVariable(ctx, registry.Variable{Name: registry.VarClickBoost, Weight: 20}), convey.ShouldBeNil)

				next, err := store.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(next.Variables[registry.VarClickBoost].Weight, convey.ShouldEqual, 20)
			})
		})

		convey.Convey("When a config row is unparseable", func() {
			convey.So(store.UpsertConfig(ctx, registry.KeyNotifyDropPct, "lots"), convey.ShouldBeNil)

			snap, err := store.Load(ctx)

			convey.Convey("Then the bad row is skipped and the default survives", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(snap.NotifyDropPct, convey.ShouldEqual, 0.15)
			})
		})

		convey.Convey("When config inverts the price bounds", func() {
			convey.So(store.UpsertConfig(ctx, registry.KeyPriceFloor, "900"), convey.ShouldBeNil)

			_, err := store.Load(ctx)

			convey.Convey("Then the load is rejected", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}
