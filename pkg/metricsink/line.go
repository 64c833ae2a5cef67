package metricsink

import (
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// FormatLine renders one line-protocol record without the trailing newline;
// SendLine appends it.
func FormatLine(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) string {
	point := write.NewPoint(measurement, tags, fields, ts)
	return strings.TrimSuffix(write.PointToLineProtocol(point, time.Nanosecond), "\n")
}
