package ranking_test

import (
	"context"
	"testing"

	"github.com/okian/keel/internal/domain/model"
	"github.com/okian/keel/internal/domain/ranking"
	"github.com/okian/keel/internal/domain/rewards"
	. "github.com/smartystreets/goconvey/convey"
)

func candidates(names ...string) []model.CardCandidate {
	out := make([]model.CardCandidate, len(names))
	for i, name := range names {
		out[i] = model.CardCandidate{Name: name}
	}
	return out
}

func TestRank(t *testing.T) {
	Convey("Given an engine over the default rule table", t, func() {
		engine := ranking.New(rewards.NewStore())
		ctx := context.Background()

		Convey("When ranking the wallet for dining", func() {
			result := engine.Rank(ctx, "dining", "", candidates("Amex Gold", "Chase Freedom", "Citi Custom Cash"))

			Convey("Then output is sorted descending by multiplier", func() {
				So(result.Top, ShouldHaveLength, 3)
				So(result.Top[0].Card, ShouldEqual, "Citi Custom Cash")
				So(result.Top[0].Score, ShouldEqual, 5.0)
				So(result.Top[1].Card, ShouldEqual, "Amex Gold")
				So(result.Top[1].Score, ShouldEqual, 4.0)
				So(result.Top[2].Card, ShouldEqual, "Chase Freedom")
				So(result.Top[2].Score, ShouldEqual, 1.0)
			})

			Convey("And reasons name the matched rule", func() {
				So(result.Top[0].Reason, ShouldEqual, "5x dining")
				So(result.Top[1].Reason, ShouldEqual, "4x dining")
				So(result.Top[2].Reason, ShouldEqual, "1x base")
			})

			Convey("And the response carries the rules version", func() {
				So(result.RulesVersion, ShouldEqual, "1.0")
			})
		})

		Convey("When scores tie", func() {
			result := engine.Rank(ctx, "travel", "", candidates("Chase Freedom", "Amex Gold", "Citi Custom Cash"))

			Convey("Then the caller's candidate order is preserved", func() {
				So(result.Top[0].Card, ShouldEqual, "Chase Freedom")
				So(result.Top[1].Card, ShouldEqual, "Amex Gold")
				So(result.Top[2].Card, ShouldEqual, "Citi Custom Cash")
				for _, rec := range result.Top {
					So(rec.Score, ShouldEqual, 1.0)
					So(rec.Reason, ShouldEqual, "1x base")
				}
			})
		})

		Convey("When the candidate list is empty", func() {
			result := engine.Rank(ctx, "dining", "", nil)

			Convey("Then the top list is empty, not an error", func() {
				So(result.Top, ShouldBeEmpty)
				So(result.RulesVersion, ShouldEqual, "1.0")
			})
		})

		Convey("When no category is given but an MCC is", func() {
			result := engine.Rank(ctx, "", "5812", candidates("Amex Gold", "Chase Freedom"))

			Convey("Then the MCC index derives the category", func() {
				So(result.Top[0].Card, ShouldEqual, "Amex Gold")
				So(result.Top[0].Reason, ShouldEqual, "4x dining")
			})
		})

		Convey("When neither category nor MCC is given", func() {
			result := engine.Rank(ctx, "", "", candidates("Citi Custom Cash", "Amex Gold"))

			Convey("Then every card earns its base multiplier, input order kept", func() {
				So(result.Top[0].Card, ShouldEqual, "Citi Custom Cash")
				So(result.Top[1].Card, ShouldEqual, "Amex Gold")
				So(result.Top[0].Reason, ShouldEqual, "1x base")
			})
		})

		Convey("When a candidate card is not in the table", func() {
			result := engine.Rank(ctx, "dining", "", candidates("Mystery Card"))

			Convey("Then it ranks at the default base", func() {
				So(result.Top[0].Score, ShouldEqual, 1.0)
				So(result.Top[0].Reason, ShouldEqual, "1x base")
			})
		})
	})

	Convey("Given a table whose category rule matches the base", t, func() {
		store := rewards.NewStore(rewards.WithTable(&rewards.Table{
			Version: "1.0",
			Cards: map[string]rewards.Card{
				"Everyday": {Base: 1.0, Categories: map[string]float64{"dining": 1.0}},
			},
		}))
		engine := ranking.New(store)

		Convey("When ranking that category", func() {
			result := engine.Rank(context.Background(), "dining", "", candidates("Everyday"))

			Convey("Then the reason reads base, not the category", func() {
				So(result.Top[0].Score, ShouldEqual, 1.0)
				So(result.Top[0].Reason, ShouldEqual, "1x base")
			})
		})
	})

	Convey("Given an engine over a reloaded table", t, func() {
		store := rewards.NewStore(rewards.WithTable(&rewards.Table{
			Version: "9.3",
			Cards: map[string]rewards.Card{
				"Amex Gold": {Base: 1.0, Categories: map[string]float64{"dining": 2.5}},
			},
		}))
		engine := ranking.New(store)

		Convey("When ranking against it", func() {
			result := engine.Rank(context.Background(), "dining", "", candidates("Amex Gold"))

			Convey("Then the new version and fractional multiplier surface", func() {
				So(result.RulesVersion, ShouldEqual, "9.3")
				So(result.Top[0].Score, ShouldEqual, 2.5)
				So(result.Top[0].Reason, ShouldEqual, "2.5x dining")
			})
		})
	})
}
