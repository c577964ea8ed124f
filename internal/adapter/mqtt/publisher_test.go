package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	token        *fakeToken
	sent         []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	c.sent = append(c.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisher_Publish(t *testing.T) {
	fc := &fakeClient{token: &fakeToken{}}
	p := newPublisher(fc, "vibration/severity/", discardLogger())

	results := []domain.ResultRecord{
		{SecondBucket: domain.SecondBucket{Key: 1742743672, SampleCount: 2, SeverityScore: 1.5}, FileName: "run-01.txt"},
		{SecondBucket: domain.SecondBucket{Key: 1742743673, SampleCount: 1, SeverityScore: 0.5}, FileName: "run-01.txt"},
	}
	require.NoError(t, p.Publish(context.Background(), "run-01.txt", results))

	require.Len(t, fc.sent, 1)
	assert.Equal(t, "vibration/severity/run-01", fc.sent[0].topic)
	assert.Equal(t, byte(1), fc.sent[0].qos)

	var body FilePayload
	require.NoError(t, json.Unmarshal(fc.sent[0].payload, &body))
	assert.Equal(t, "run-01.txt", body.FileName)
	require.Len(t, body.Results, 2)
	assert.Equal(t, int64(1742743673), body.Results[1].EpochSeconds)
}

func TestPublisher_PublishErrors(t *testing.T) {
	tests := []struct {
		name  string
		token *fakeToken
		want  string
	}{
		{"broker error", &fakeToken{err: errors.New("not authorized")}, "not authorized"},
		{"timeout", &fakeToken{timeout: true}, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPublisher(&fakeClient{token: tt.token}, "v", discardLogger())
			err := p.Publish(context.Background(), "a.txt", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPublisher_TopicSanitised(t *testing.T) {
	p := newPublisher(&fakeClient{}, "v", discardLogger())
	assert.Equal(t, "v/run__1", p.Topic("run+#1.txt"))
	assert.Equal(t, "v/log", p.Topic("/data/log.txt"))
}

func TestPublisher_Close(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(fc, "v", discardLogger())
	require.NoError(t, p.Close())
	assert.True(t, fc.disconnected)
}
