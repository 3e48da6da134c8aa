package places_test

import (
	"testing"

	"github.com/okian/keel/internal/adapters/places"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMapTypes(t *testing.T) {
	Convey("Given upstream place types", t, func() {
		Convey("When a type maps to a known MCC", func() {
			mcc, category := places.MapTypes([]string{"restaurant", "point_of_interest"})

			Convey("Then both the MCC and the reward category resolve", func() {
				So(mcc, ShouldEqual, "5812")
				So(category, ShouldEqual, "dining")
			})
		})

		Convey("When the first type is unknown", func() {
			mcc, category := places.MapTypes([]string{"point_of_interest", "gas_station"})

			Convey("Then the first known type wins", func() {
				So(mcc, ShouldEqual, "5541")
				So(category, ShouldEqual, "gas")
			})
		})

		Convey("When no type is known", func() {
			mcc, category := places.MapTypes([]string{"point_of_interest", "establishment"})

			Convey("Then both results are empty", func() {
				So(mcc, ShouldBeEmpty)
				So(category, ShouldBeEmpty)
			})
		})

		Convey("When the type list is empty", func() {
			mcc, category := places.MapTypes(nil)

			So(mcc, ShouldBeEmpty)
			So(category, ShouldBeEmpty)
		})
	})
}
