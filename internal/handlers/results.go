package handlers

import (
	"net/http"
	"strconv"

	"lexlab/internal/catalog"
	"lexlab/internal/repository"
	"lexlab/internal/schedule"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

type ResultsHandler struct {
	log *zap.Logger
}

func NewResultsHandler(log *zap.Logger) *ResultsHandler {
	return &ResultsHandler{log: log}
}

// LatencyChart returns chart options for mean guess latency across exposure
// steps, one series per condition. The massed/spaced gap over exposures is
// the headline figure of the design.
func (h *ResultsHandler) LatencyChart(c *gin.Context) {
	data, err := repository.GetGuessLatencyByExposure(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to load latency aggregates", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load results"})
		return
	}

	chart := generateLatencyChart(data)
	c.JSON(http.StatusOK, chart.JSON())
}

func generateLatencyChart(data []repository.ExposureLatencyPoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Guess Latency by Exposure",
			Subtitle: "Mean response time (ms), completed sessions",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Type: "category",
			Name: "exposure",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type:  "value",
			Name:  "ms",
			Scale: opts.Bool(true),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)

	// Guess phases exist for exposures 1..4; exposure 5 is review-only.
	axis := make([]string, 0, schedule.ExposuresPerItem-1)
	for i := 1; i < schedule.ExposuresPerItem; i++ {
		axis = append(axis, strconv.Itoa(i))
	}

	series := map[catalog.Condition][]opts.LineData{
		catalog.ConditionMassed: emptySeries(schedule.ExposuresPerItem - 1),
		catalog.ConditionSpaced: emptySeries(schedule.ExposuresPerItem - 1),
	}
	for _, point := range data {
		cond := catalog.Condition(point.Condition)
		if point.ExposureIndex < 1 || point.ExposureIndex >= schedule.ExposuresPerItem {
			continue
		}
		if s, ok := series[cond]; ok {
			s[point.ExposureIndex-1] = opts.LineData{Value: point.MeanMs}
		}
	}

	line.SetXAxis(axis)
	line.AddSeries(string(catalog.ConditionMassed), series[catalog.ConditionMassed])
	line.AddSeries(string(catalog.ConditionSpaced), series[catalog.ConditionSpaced])
	line.SetSeriesOptions(charts.WithLineStyleOpts(opts.LineStyle{Width: 2}))
	return line
}

func emptySeries(n int) []opts.LineData {
	s := make([]opts.LineData, n)
	for i := range s {
		s[i] = opts.LineData{Value: nil}
	}
	return s
}
