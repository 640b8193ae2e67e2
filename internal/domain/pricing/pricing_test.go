package pricing_test

import (
	"context"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/quotewire/pulse/internal/domain/model"
	"github.com/quotewire/pulse/internal/domain/pricing"
	"github.com/quotewire/pulse/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

func baseInput(now time.Time) pricing.Input {
	return pricing.Input{
		OpportunityID:  "opp-1",
		PriorPrice:     100,
		Floor:          50,
		Ceiling:        500,
		LastMovedAt:    now,
		LastDecayAt:    now,
		InventoryLevel: 3,
		Now:            now,
	}
}

func TestEngine_Compute(t *testing.T) {
	convey.Convey("Given a pricing engine", t, func() {
		ctx := context.Background()
		now := time.Now()
		engine := pricing.NewEngine()

		convey.Convey("When one click and three pitches arrive with identity weights", func() {
			in := baseInput(now)
			in.Signals = []pricing.Signal{
				{Name: "click_boost", Value: 1, Weight: 12},
				{Name: "pitch_velocity", Value: 3, Weight: 10},
			}

			result, err := engine.Compute(ctx, in)

			convey.Convey("Then the price moves up by the weighted sum", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(result.Delta, convey.ShouldEqual, 42)
				convey.So(result.Price, convey.ShouldEqual, 142)
				convey.So(result.Trend, convey.ShouldEqual, model.TrendUp)
				convey.So(result.Contributions, convey.ShouldHaveLength, 2)
			})
		})

		convey.Convey("When no signals fire", func() {
			result, err := engine.Compute(ctx, baseInput(now))

			convey.Convey("Then the price holds and the trend is stable", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(result.Price, convey.ShouldEqual, 100)
				convey.So(result.Trend, convey.ShouldEqual, model.TrendStable)
			})
		})

		convey.Convey("When the delta would breach the ceiling", func() {
			in := baseInput(now)
			in.Signals = []pricing.Signal{{Name: "click_boost", Value: 100, Weight: 10}}

			result, err := engine.Compute(ctx, in)

			convey.Convey("Then the price clamps at the ceiling", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(result.Price, convey.ShouldEqual, 500)
				convey.So(result.Clamped, convey.ShouldEqual, "ceiling")
			})
		})

		convey.Convey("When a negative delta would breach the floor", func() {
			in := baseInput(now)
			in.Signals = []pricing.Signal{{Name: "baseline_decay", Value: -10, Weight: 10}}

			result, err := engine.Compute(ctx, in)

			convey.Convey("Then the price clamps at the floor", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(result.Price, convey.ShouldEqual, 50)
				convey.So(result.Clamped, convey.ShouldEqual, "floor")
				convey.So(result.Trend, convey.ShouldEqual, model.TrendDown)
			})
		})

		convey.Convey("When inventory is exhausted", func() {
			in := baseInput(now)
			in.InventoryLevel = 0

			result, err := engine.Compute(ctx, in)

			convey.Convey("Then the price is forced to the ceiling", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(result.Price, convey.ShouldEqual, 500)
			})
		})

		convey.Convey("When bounds are inverted", func() {
			in := baseInput(now)
			in.Floor = 500
			in.Ceiling = 100

			_, err := engine.Compute(ctx, in)

			convey.Convey("Then the computation fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestEngine_AmbientDecay(t *testing.T) {
	convey.Convey("Given ambient decay of 2% after 7 minutes idle", t, func() {
		ctx := context.Background()
		now := time.Now()
		engine := pricing.NewEngine()

		ambient := pricing.Ambient{
			Trigger:  7 * time.Minute,
			Cooldown: 10 * time.Minute,
			Rate:     0.02,
		}

		convey.Convey("When the trigger window has elapsed with no movement", func() {
			in := baseInput(now)
			in.Ambient = ambient
			in.LastMovedAt = now.Add(-8 * time.Minute)
			in.LastDecayAt = now.Add(-11 * time.Minute)

			result, err := engine.Compute(ctx, in)

			convey.Convey("Then the price drifts down multiplicatively", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(result.AmbientApplied, convey.ShouldBeTrue)
				convey.So(result.Price, convey.ShouldAlmostEqual, 98, 1e-9)
				convey.So(result.Trend, convey.ShouldEqual, model.TrendDown)
			})
		})

		convey.Convey("When a recent price move resets the trigger", func() {
			in := baseInput(now)
			in.Ambient = ambient
			in.LastMovedAt = now.Add(-3 * time.Minute)
			in.LastDecayAt = now.Add(-11 * time.Minute)

			result, err := engine.Compute(ctx, in)

			convey.Convey("Then no decay is applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(result.AmbientApplied, convey.ShouldBeFalse)
				convey.So(result.Price, convey.ShouldEqual, 100)
			})
		})

		convey.Convey("When a previous decay is still cooling down", func() {
			in := baseInput(now)
			in.Ambient = ambient
			in.LastMovedAt = now.Add(-8 * time.Minute)
			in.LastDecayAt = now.Add(-5 * time.Minute)

			result, err := engine.Compute(ctx, in)

			convey.Convey("Then no second decay is applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(result.AmbientApplied, convey.ShouldBeFalse)
				convey.So(result.Price, convey.ShouldEqual, 100)
			})
		})
	})
}

func TestEngine_NonlinearFns(t *testing.T) {
	convey.Convey("Given the built-in transforms", t, func() {
		ctx := context.Background()
		now := time.Now()
		engine := pricing.NewEngine()

		convey.Convey("When a signal uses log1p", func() {
			in := baseInput(now)
			in.Signals = []pricing.Signal{{Name: "pitch_velocity", Value: 0, Weight: 10, Fn: pricing.FnLog1p}}

			result, err := engine.Compute(ctx, in)

			convey.Convey("Then zero input contributes zero", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(result.Delta, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When a signal names an unknown transform", func() {
			in := baseInput(now)
			in.Signals = []pricing.Signal{{Name: "pitch_velocity", Value: 2, Weight: 10, Fn: "cubist"}}

			result, err := engine.Compute(ctx, in)

			convey.Convey("Then identity is used instead of failing", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(result.Delta, convey.ShouldEqual, 20)
				convey.So(result.Contributions[0].Fn, convey.ShouldEqual, pricing.FnIdentity)
			})
		})

		convey.Convey("When sigmoid squashes a large value", func() {
			in := baseInput(now)
			in.Signals = []pricing.Signal{{Name: "outlet_load", Value: 1000, Weight: 10, Fn: pricing.FnSigmoid}}

			result, err := engine.Compute(ctx, in)

			convey.Convey("Then the contribution saturates near the weight", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(result.Delta, convey.ShouldAlmostEqual, 10, 1e-6)
			})
		})
	})
}
