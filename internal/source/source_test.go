package source

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	r, err := ParseJSON([]byte(`{"t":1700000000123,"kind":"acc","x":0.1,"y":-0.2,"z":9.8}`))
	require.NoError(t, err)
	assert.Equal(t, KindAccel, r.Kind)
	assert.Equal(t, int64(1700000000123), r.T.UnixMilli())
	assert.InDelta(t, 9.8, r.Sample().Z, 1e-12)

	r, err = ParseJSON([]byte(`{"t":1,"kind":"ppg","v":512.5}`))
	require.NoError(t, err)
	assert.Equal(t, 512.5, r.V)

	_, err = ParseJSON([]byte(`{"t":1,"kind":"acc","x":1}`))
	assert.Error(t, err)
	_, err = ParseJSON([]byte(`{"t":1,"kind":"baro","v":1}`))
	assert.Error(t, err)
	_, err = ParseJSON([]byte(`not json`))
	assert.Error(t, err)
}

func TestCSVSourceReplaysInOrder(t *testing.T) {
	input := strings.Join([]string{
		"t_ms,kind,x,y,z",
		"1000,acc,0,0,9.8",
		"# comment",
		"1040,gyro,0.01,0.02,0.03",
		"1040,ppg,500,,",
	}, "\n")

	var got []Reading
	src := NewCSVSource(strings.NewReader(input), 0, zerolog.Nop())
	require.NoError(t, src.Run(context.Background(), func(r Reading) { got = append(got, r) }))

	require.Len(t, got, 3)
	assert.Equal(t, KindAccel, got[0].Kind)
	assert.Equal(t, KindGyro, got[1].Kind)
	assert.Equal(t, 0.03, got[1].Z)
	assert.Equal(t, KindPPG, got[2].Kind)
	assert.Equal(t, 500.0, got[2].V)
}

func TestCSVSourceRejectsBadRow(t *testing.T) {
	src := NewCSVSource(strings.NewReader("1000,acc,0,0\n"), 0, zerolog.Nop())
	err := src.Run(context.Background(), func(Reading) {})
	assert.ErrorContains(t, err, "line 1")
}

func TestCSVSourceHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewCSVSource(strings.NewReader("1000,acc,0,0,1\n2000,acc,0,0,1\n"), 1, zerolog.Nop())
	assert.ErrorIs(t, src.Run(ctx, func(Reading) {}), context.Canceled)
}

func TestMQTTSourceDeliversReadings(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{Type: "tcp", ID: "t", Address: addr})))
	require.NoError(t, server.Serve())
	defer server.Close()

	connect := func(id string) mqtt.Client {
		c := mqtt.NewClient(mqtt.NewClientOptions().AddBroker("tcp://" + addr).SetClientID(id))
		tok := c.Connect()
		require.True(t, tok.WaitTimeout(5*time.Second))
		require.NoError(t, tok.Error())
		return c
	}
	pub := connect("pub")
	defer pub.Disconnect(100)
	sub := connect("sub")
	defer sub.Disconnect(100)

	// Retained so the reading survives until the subscription is live.
	tok := pub.Publish("posturewatch/samples", 1, true, []byte(`{"t":5,"kind":"gyro","x":1,"y":2,"z":3}`))
	require.True(t, tok.WaitTimeout(5*time.Second))
	require.NoError(t, tok.Error())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan Reading, 1)
	done := make(chan error, 1)
	src := NewMQTTSource(sub, "posturewatch/samples", 1, zerolog.Nop())
	go func() { done <- src.Run(ctx, func(r Reading) { got <- r }) }()

	select {
	case r := <-got:
		assert.Equal(t, KindGyro, r.Kind)
		assert.Equal(t, 2.0, r.Y)
	case <-time.After(5 * time.Second):
		t.Fatal("no reading delivered")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
