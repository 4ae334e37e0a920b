//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkatc "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/victor-cakess/hometown/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	c, err := kafkatc.Run(ctx, "confluentinc/confluent-local:7.5.0", kafkatc.WithClusterID("hometown-test"))
	testcontainers.CleanupContainer(t, c)
	require.NoError(t, err, "start kafka container")

	brokers, err := c.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	}))
}

func turbine(i int) domain.Feature {
	var a domain.Attributes
	a.Set("OBJECTID", int64(i+1))
	a.Set(domain.FieldFacility, fmt.Sprintf("EOL.CV.RN.%06d-1", i))
	a.Set(domain.FieldFarmName, fmt.Sprintf("Parque %d", i%9))
	a.Set(domain.FieldCapacity, 3.6)
	a.Set(domain.FieldOperating, domain.StatusOperating)
	a.Set(domain.FieldUpdatedAt, int64(1714521600000+i))
	x, y := -36.5, -5.2
	return domain.Feature{Attributes: a, Geometry: &domain.Geometry{X: &x, Y: &y}}
}

// fakeSIGEL serves count and paged queries the way the ArcGIS layer does.
func fakeSIGEL(t *testing.T, features []domain.Feature) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		if q.Get("returnCountOnly") == "true" {
			fmt.Fprintf(w, `{"count":%d}`, len(features))
			return
		}
		offset, _ := strconv.Atoi(q.Get("resultOffset"))
		limit, _ := strconv.Atoi(q.Get("resultRecordCount"))
		page := []domain.Feature{}
		if offset < len(features) {
			page = features[offset:min(offset+limit, len(features))]
		}
		_ = json.NewEncoder(w).Encode(struct {
			Features []domain.Feature `json:"features"`
		}{page})
	}))
	t.Cleanup(srv.Close)
	return srv
}
