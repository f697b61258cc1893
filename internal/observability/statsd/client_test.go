package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix, name, want string
	}{
		{"analyzer", "job.transition", "analyzer.job.transition"},
		{"", " job/metric ", "job_metric"},
		{"analyzer", "foo..bar", "analyzer.foo.bar"},
		{"analyzer", "", ""},
		{"analyzer", "...", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, metricName(tt.prefix, tt.name), "%q + %q", tt.prefix, tt.name)
	}
}

func TestFormatLine(t *testing.T) {
	t.Parallel()

	global := map[string]string{"env": "prod", " service ": " analyzer "}
	local := map[string]string{"result": " success ", "": "ignored", "env": "stage"}

	got := formatLine("app", "pipeline.stage", "1", "c", global, local)
	assert.Equal(t, "app.pipeline.stage:1|c|#env:stage,result:success,service:analyzer", got)
	assert.Equal(t, "app.x:2|g", formatLine("app", "x", "2", "g", nil, nil))
	assert.Empty(t, formatLine("app", "", "2", "g", nil, nil))
}

func TestNewClient_DisabledDropsMetrics(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{Enabled: false, Address: "127.0.0.1:8125"})
	require.NoError(t, err)
	assert.False(t, c.Enabled())
	c.Count("x", 1, nil) // must not panic
	require.NoError(t, c.Close())

	var nilClient *Client
	nilClient.Timing("x", time.Second, nil)
	assert.False(t, nilClient.Enabled())
}

func TestClient_WritesDatagrams(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	c, err := NewClient(Config{Enabled: true, Address: pc.LocalAddr().String(), Prefix: ".analyzer."})
	require.NoError(t, err)
	defer c.Close()
	require.True(t, c.Enabled())

	c.Timing("job.duration", 1500*time.Millisecond, map[string]string{"result": "success"})

	buf := make([]byte, 512)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "analyzer.job.duration:1500|ms|#result:success", string(buf[:n]))

	require.NoError(t, c.Close())
	assert.False(t, c.Enabled())
	require.NoError(t, c.Close())
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	var r Recorder
	r.Count("a", 2, map[string]string{"k": "v"})
	r.Gauge("b", 1.5, nil)
	r.Timing("a", 250*time.Millisecond, nil)

	assert.Len(t, r.Samples(), 3)
	named := r.Named("a")
	require.Len(t, named, 2)
	assert.Equal(t, "c", named[0].Kind)
	assert.InDelta(t, 2, named[0].Value, 0.001)
	assert.Equal(t, "v", named[0].Tags["k"])
	assert.InDelta(t, 250, named[1].Value, 0.001)
}
