package aws

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/go-outfit-pipeline/internal/logger"
)

// MetricsRecorder publishes single data points to CloudWatch. Failures are
// logged, never returned, so metrics cannot fail a request.
type MetricsRecorder struct {
	cw         CloudWatchAPI
	namespace  string
	dimensions []cwtypes.Dimension
	log        *logger.Logger
	nowFunc    func() time.Time
}

// NewMetricsRecorder tags every datum with the given dimension pairs.
func NewMetricsRecorder(cw CloudWatchAPI, namespace string, log *logger.Logger, dimensions map[string]string) *MetricsRecorder {
	m := &MetricsRecorder{
		cw:        cw,
		namespace: namespace,
		log:       logger.OrNop(log).With("component", "metrics"),
		nowFunc:   time.Now,
	}
	for k, v := range dimensions {
		m.dimensions = append(m.dimensions, cwtypes.Dimension{Name: sdkaws.String(k), Value: sdkaws.String(v)})
	}
	return m
}

func (m *MetricsRecorder) Record(ctx context.Context, name string, value float64, unit string) {
	_, err := m.cw.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: sdkaws.String(name),
			Value:      sdkaws.Float64(value),
			Unit:       cwtypes.StandardUnit(unit),
			Timestamp:  sdkaws.Time(m.nowFunc().UTC()),
			Dimensions: m.dimensions,
		}},
	})
	if err != nil {
		m.log.Warn("put metric failed", "metric", name, "error", err)
	}
}
