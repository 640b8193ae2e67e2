package notify_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/quotewire/pulse/internal/domain/ledger"
	"github.com/quotewire/pulse/internal/domain/model"
	"github.com/quotewire/pulse/internal/domain/registry"
	"github.com/quotewire/pulse/internal/notify"
	"github.com/quotewire/pulse/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

// Mock implementations for testing.
type mockResolver struct {
	users  []string
	subs   []model.PushSubscription
	pruned []string
}

func (m *mockResolver) InterestedUsers(ctx context.Context, opportunityID string) ([]string, error) {
	return m.users, nil
}

func (m *mockResolver) PushSubscriptions(ctx context.Context, userIDs []string) ([]model.PushSubscription, error) {
	return m.subs, nil
}

func (m *mockResolver) PrunePushSubscription(ctx context.Context, userID string) error {
	m.pruned = append(m.pruned, userID)
	return nil
}

type mockEmail struct {
	mu      sync.Mutex
	sent    []notify.Notification
	sentTo  []string
	failFor map[string]error
}

func newMockEmail() *mockEmail {
	return &mockEmail{failFor: make(map[string]error)}
}

func (m *mockEmail) Send(ctx context.Context, userID string, n notify.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[userID]; ok {
		return err
	}
	m.sent = append(m.sent, n)
	m.sentTo = append(m.sentTo, userID)
	return nil
}

type mockPush struct {
	sent    []model.PushSubscription
	failFor map[string]error
}

func newMockPush() *mockPush {
	return &mockPush{failFor: make(map[string]error)}
}

func (m *mockPush) Send(ctx context.Context, sub model.PushSubscription, n notify.Notification) error {
	if err, ok := m.failFor[sub.UserID]; ok {
		return err
	}
	m.sent = append(m.sent, sub)
	return nil
}

func testSnapshot() *registry.Snapshot {
	return &registry.Snapshot{
		Floor:          100,
		Ceiling:        500,
		NotifyDropPct:  0.15,
		LastCallWindow: 4 * time.Hour,
		LastCallSlots:  2,
	}
}

func openOpportunity(price float64, inventory int, deadline time.Time) model.Opportunity {
	return model.Opportunity{
		ID:             "opp-1",
		OutletID:       "outlet-1",
		Title:          "Expert comment on market outlook",
		Status:         model.StatusOpen,
		Deadline:       deadline,
		CurrentPrice:   price,
		InventoryLevel: inventory,
	}
}

func TestDispatcher_PriceDrop(t *testing.T) {
	convey.Convey("Given a dispatcher with one interested user", t, func() {
		ctx := context.Background()
		now := time.Now()
		snap := testSnapshot()
		resolver := &mockResolver{users: []string{"u1"}}
		email := newMockEmail()
		d := notify.NewDispatcher(ledger.NewInMemoryLedger(), resolver, email)

		// Keep the deadline outside the last-call window.
		o := openOpportunity(300, 5, now.Add(48*time.Hour))
		d.Evaluate(ctx, o, snap, now)

		convey.Convey("The first evaluation only establishes a baseline", func() {
			convey.So(email.sent, convey.ShouldBeEmpty)
		})

		convey.Convey("When the price drops past the configured fraction", func() {
			o.CurrentPrice = 250
			d.Evaluate(ctx, o, snap, now)

			convey.Convey("Then one notification fires", func() {
				convey.So(email.sent, convey.ShouldHaveLength, 1)
				convey.So(email.sent[0].Template, convey.ShouldEqual, notify.TemplatePriceDrop)
				convey.So(email.sent[0].CurrentPrice, convey.ShouldEqual, 250)
			})

			convey.Convey("And the sustained drop is suppressed", func() {
				d.Evaluate(ctx, o, snap, now)
				d.Evaluate(ctx, o, snap, now)
				convey.So(email.sent, convey.ShouldHaveLength, 1)
			})

			convey.Convey("And a later drop from the reset baseline fires again", func() {
				o.CurrentPrice = 245 // above threshold, re-arms
				d.Evaluate(ctx, o, snap, now)
				convey.So(email.sent, convey.ShouldHaveLength, 1)

				o.CurrentPrice = 200
				d.Evaluate(ctx, o, snap, now)
				convey.So(email.sent, convey.ShouldHaveLength, 2)
			})
		})

		convey.Convey("When the price rises, the baseline ratchets up to the peak", func() {
			o.CurrentPrice = 400
			d.Evaluate(ctx, o, snap, now)

			// 13.75% below the peak: not enough.
			o.CurrentPrice = 345
			d.Evaluate(ctx, o, snap, now)
			convey.So(email.sent, convey.ShouldBeEmpty)

			// Well past 15% below the peak fires, even though the price
			// is still above where it started.
			o.CurrentPrice = 335
			d.Evaluate(ctx, o, snap, now)
			convey.So(email.sent, convey.ShouldHaveLength, 1)
			convey.So(email.sent[0].CurrentPrice, convey.ShouldEqual, 335)
		})
	})
}

func TestDispatcher_LastCall(t *testing.T) {
	convey.Convey("Given a dispatcher with one interested user", t, func() {
		ctx := context.Background()
		now := time.Now()
		snap := testSnapshot()
		resolver := &mockResolver{users: []string{"u1"}}
		email := newMockEmail()
		d := notify.NewDispatcher(ledger.NewInMemoryLedger(), resolver, email)

		convey.Convey("When scarce inventory meets a near deadline", func() {
			o := openOpportunity(200, 1, now.Add(time.Hour))
			d.Evaluate(ctx, o, snap, now)

			convey.Convey("Then the last-call notification fires once", func() {
				convey.So(email.sent, convey.ShouldHaveLength, 1)
				convey.So(email.sent[0].Template, convey.ShouldEqual, notify.TemplateLastCall)

				d.Evaluate(ctx, o, snap, now)
				convey.So(email.sent, convey.ShouldHaveLength, 1)
			})

			convey.Convey("And restocking re-arms the condition", func() {
				o.InventoryLevel = 4
				d.Evaluate(ctx, o, snap, now)
				convey.So(email.sent, convey.ShouldHaveLength, 1)

				o.InventoryLevel = 2
				d.Evaluate(ctx, o, snap, now)
				convey.So(email.sent, convey.ShouldHaveLength, 2)
			})
		})

		convey.Convey("When inventory is exhausted", func() {
			o := openOpportunity(200, 0, now.Add(time.Hour))
			d.Evaluate(ctx, o, snap, now)

			convey.Convey("Then nothing fires", func() {
				convey.So(email.sent, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the deadline is far away", func() {
			o := openOpportunity(200, 1, now.Add(48*time.Hour))
			d.Evaluate(ctx, o, snap, now)

			convey.Convey("Then nothing fires", func() {
				convey.So(email.sent, convey.ShouldBeEmpty)
			})
		})
	})
}

func TestDispatcher_SnapshotGateway(t *testing.T) {
	convey.Convey("Given a dispatcher without a pinned push sender", t, func() {
		ctx := context.Background()
		now := time.Now()
		resolver := &mockResolver{
			users: []string{"u1"},
			subs:  []model.PushSubscription{{UserID: "u1", Endpoint: "https://push.example/u1"}},
		}
		email := newMockEmail()
		d := notify.NewDispatcher(ledger.NewInMemoryLedger(), resolver, email)

		var hitsA, hitsB atomic.Int64
		var apiKey atomic.Value
		srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hitsA.Add(1)
			apiKey.Store(r.Header.Get("X-API-Key"))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srvA.Close()
		srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hitsB.Add(1)
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srvB.Close()

		snap := testSnapshot()
		snap.PushGatewayURL = srvA.URL
		snap.PushAPIKey = "key-a"

		o := openOpportunity(200, 1, now.Add(time.Hour))

		convey.Convey("When the snapshot carries gateway credentials", func() {
			d.Evaluate(ctx, o, snap, now)

			convey.Convey("Then the gateway built from them receives the push", func() {
				convey.So(email.sent, convey.ShouldHaveLength, 1)
				convey.So(hitsA.Load(), convey.ShouldEqual, 1)
				convey.So(apiKey.Load(), convey.ShouldEqual, "key-a")
			})

			convey.Convey("And rotated credentials take effect on the next delivery", func() {
				rotated := testSnapshot()
				rotated.PushGatewayURL = srvB.URL

				o.InventoryLevel = 4 // re-arm
				d.Evaluate(ctx, o, rotated, now)
				o.InventoryLevel = 1
				d.Evaluate(ctx, o, rotated, now)

				convey.So(hitsA.Load(), convey.ShouldEqual, 1)
				convey.So(hitsB.Load(), convey.ShouldEqual, 1)
			})

			convey.Convey("And an emptied gateway row disables push only", func() {
				disabled := testSnapshot()

				o.InventoryLevel = 4 // re-arm
				d.Evaluate(ctx, o, disabled, now)
				o.InventoryLevel = 1
				d.Evaluate(ctx, o, disabled, now)

				convey.So(email.sent, convey.ShouldHaveLength, 2)
				convey.So(hitsA.Load(), convey.ShouldEqual, 1)
				convey.So(hitsB.Load(), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestDispatcher_Delivery(t *testing.T) {
	convey.Convey("Given several interested users and push subscriptions", t, func() {
		ctx := context.Background()
		now := time.Now()
		snap := testSnapshot()
		resolver := &mockResolver{
			users: []string{"u1", "u2"},
			subs: []model.PushSubscription{
				{UserID: "u1", Endpoint: "https://push.example/u1"},
				{UserID: "u2", Endpoint: "https://push.example/u2"},
			},
		}
		email := newMockEmail()
		push := newMockPush()
		d := notify.NewDispatcher(ledger.NewInMemoryLedger(), resolver, email,
			notify.WithPushSender(push))

		o := openOpportunity(200, 1, now.Add(time.Hour))

		convey.Convey("When one email delivery fails", func() {
			email.failFor["u1"] = errors.New("relay refused")
			d.Evaluate(ctx, o, snap, now)

			convey.Convey("Then the other user still gets theirs", func() {
				convey.So(email.sentTo, convey.ShouldResemble, []string{"u2"})
			})
		})

		convey.Convey("When a push endpoint is gone", func() {
			push.failFor["u1"] = notify.ErrEndpointGone
			d.Evaluate(ctx, o, snap, now)

			convey.Convey("Then the dead subscription is pruned and the rest delivered", func() {
				convey.So(resolver.pruned, convey.ShouldResemble, []string{"u1"})
				convey.So(push.sent, convey.ShouldHaveLength, 1)
				convey.So(push.sent[0].UserID, convey.ShouldEqual, "u2")
			})
		})

		convey.Convey("When ledger state is forgotten", func() {
			d.Evaluate(ctx, o, snap, now)
			convey.So(email.sent, convey.ShouldHaveLength, 2)

			d.Forget(ctx, o.ID)
			d.Evaluate(ctx, o, snap, now)

			convey.Convey("Then the condition fires fresh", func() {
				convey.So(email.sent, convey.ShouldHaveLength, 4)
			})
		})
	})
}
