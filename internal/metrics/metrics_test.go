package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordMessage(t *testing.T) {
	before := testutil.ToFloat64(messagesTotal.WithLabelValues("signal", "relayed"))
	RecordMessage("signal", "relayed")
	assert.Equal(t, before+1, testutil.ToFloat64(messagesTotal.WithLabelValues("signal", "relayed")))
}

func TestRecordDroppedIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(deliveriesDropped.WithLabelValues("detections"))
	RecordDropped("detections", 0)
	RecordDropped("detections", 2)
	assert.Equal(t, before+2, testutil.ToFloat64(deliveriesDropped.WithLabelValues("detections")))
}

func TestHandlerServesNamespace(t *testing.T) {
	reg := NewRegistry()
	ConnectionOpened()
	defer ConnectionClosed()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "detectbench_connections_active")
}
