package ranking_test

import (
	"math"
	"testing"

	"github.com/okian/worthrank/internal/domain/model"
	"github.com/okian/worthrank/internal/domain/ranking"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBucketKey(t *testing.T) {
	Convey("Given raw scores", t, func() {
		Convey("Then they round to two decimals", func() {
			So(ranking.BucketKey(2.5), ShouldEqual, "2.50")
			So(ranking.BucketKey(1), ShouldEqual, "1.00")
			So(ranking.BucketKey(3.14159), ShouldEqual, "3.14")
			So(ranking.BucketKey(0), ShouldEqual, "0.00")
		})

		Convey("Then nearby scores collapse into one bucket", func() {
			So(ranking.BucketKey(1.231), ShouldEqual, ranking.BucketKey(1.234))
		})

		Convey("Then bucket keys parse back", func() {
			v, err := ranking.ParseBucket("2.50")
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 2.5)

			_, err = ranking.ParseBucket("abc")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestValidScore(t *testing.T) {
	Convey("Given candidate scores", t, func() {
		So(ranking.ValidScore(2.5), ShouldBeTrue)
		So(ranking.ValidScore(-1), ShouldBeTrue)
		So(ranking.ValidScore(math.NaN()), ShouldBeFalse)
		So(ranking.ValidScore(math.Inf(1)), ShouldBeFalse)
		So(ranking.ValidScore(math.Inf(-1)), ShouldBeFalse)
	})
}

func TestFormatPercentile(t *testing.T) {
	Convey("Given lower and total counts", t, func() {
		So(ranking.FormatPercentile(0, 0), ShouldEqual, "0")
		So(ranking.FormatPercentile(5, 8), ShouldEqual, "62.5")
		So(ranking.FormatPercentile(0, 1), ShouldEqual, "0.0")
		So(ranking.FormatPercentile(1, 3), ShouldEqual, "33.3")
		So(ranking.FormatPercentile(2, 3), ShouldEqual, "66.7")
		So(ranking.FormatPercentile(10, 10), ShouldEqual, "100.0")
	})
}

func TestResultGate(t *testing.T) {
	Convey("Given a healthy histogram computation", t, func() {
		Convey("When the total is one below the threshold", func() {
			res := ranking.Result(ranking.Compute(500, 498, 999), model.BackendHistogram, ranking.DefaultHistogramMinSamples)

			Convey("Then ranking is hidden", func() {
				So(res.ShowRanking, ShouldBeFalse)
				So(res.Percentile, ShouldBeNil)
				So(res.Rank, ShouldBeNil)
				So(res.TotalCount, ShouldEqual, 999)
			})
		})

		Convey("When the total reaches the threshold", func() {
			res := ranking.Result(ranking.Compute(500, 499, 1000), model.BackendHistogram, ranking.DefaultHistogramMinSamples)

			Convey("Then ranking is shown with the higher count as rank", func() {
				So(res.ShowRanking, ShouldBeTrue)
				So(*res.Percentile, ShouldEqual, "50.0")
				So(*res.Rank, ShouldEqual, 499)
				So(res.Backend, ShouldEqual, model.BackendHistogram)
			})
		})
	})

	Convey("Given a store computation over a single sample", t, func() {
		res := ranking.Result(ranking.Compute(0, 0, 1), model.BackendStore, ranking.DefaultStoreMinSamples)

		Convey("Then it is shown as rank 0", func() {
			So(res.ShowRanking, ShouldBeTrue)
			So(*res.Rank, ShouldEqual, 0)
			So(res.TotalCount, ShouldEqual, 1)
		})
	})

	Convey("Given a degraded computation", t, func() {
		res := ranking.Result(ranking.Degraded(), model.BackendStore, 0)

		Convey("Then ranking is never shown", func() {
			So(res.ShowRanking, ShouldBeFalse)
			So(res.TotalCount, ShouldEqual, 0)
		})
	})
}
