package sensorcache_test

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/aqigateway/internal/airquality"
	"github.com/breatheroute/aqigateway/internal/airquality/sensorcache"
	"github.com/breatheroute/aqigateway/pkg/geo"
)

type countingProvider struct {
	readings []airquality.SensorReading
	err      error
	calls    atomic.Int32
}

func (p *countingProvider) FetchSensors(context.Context, geo.BoundingBox) ([]airquality.SensorReading, error) {
	p.calls.Add(1)
	return p.readings, p.err
}

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection reset")
}

func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection reset")
}

var box = geo.NewBoundingBox(geo.Coordinate{Lat: 34.05, Lon: -118.25}, 10)

func sampleReadings() []airquality.SensorReading {
	ozone := 31.2
	return []airquality.SensorReading{
		{SensorIndex: 1, Lat: 34.05, Lon: -118.25, PM25Raw: 35, Humidity: 50, Ozone: &ozone},
		{SensorIndex: 2, Lat: 34.06, Lon: -118.24, PM25Raw: 12, Humidity: 40},
	}
}

func TestKey(t *testing.T) {
	key := sensorcache.Key(geo.BoundingBox{West: -118.3599, East: -118.14, North: 34.1399, South: 33.96})
	assert.Equal(t, "aqi:sensors:-118.35990:-118.14000:34.13990:33.96000", key)
}

func TestProvider_CachesNonEmptyResults(t *testing.T) {
	next := &countingProvider{readings: sampleReadings()}
	p := sensorcache.New(sensorcache.Config{
		Next:   next,
		Store:  sensorcache.NewMemoryStore(),
		Logger: zerolog.New(io.Discard),
	})

	first, err := p.FetchSensors(context.Background(), box)
	require.NoError(t, err)

	second, err := p.FetchSensors(context.Background(), box)
	require.NoError(t, err)

	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, first, second)
	require.NotNil(t, second[0].Ozone)
	assert.Equal(t, 31.2, *second[0].Ozone)
	assert.Nil(t, second[1].Ozone)
}

func TestProvider_EmptyResultsNotCached(t *testing.T) {
	next := &countingProvider{readings: []airquality.SensorReading{}}
	p := sensorcache.New(sensorcache.Config{
		Next:   next,
		Store:  sensorcache.NewMemoryStore(),
		Logger: zerolog.New(io.Discard),
	})

	for i := 0; i < 2; i++ {
		readings, err := p.FetchSensors(context.Background(), box)
		require.NoError(t, err)
		assert.Empty(t, readings)
	}
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestProvider_ErrorsNotCached(t *testing.T) {
	next := &countingProvider{err: errors.New("upstream 500")}
	p := sensorcache.New(sensorcache.Config{
		Next:   next,
		Store:  sensorcache.NewMemoryStore(),
		Logger: zerolog.New(io.Discard),
	})

	_, err := p.FetchSensors(context.Background(), box)
	assert.Error(t, err)
	_, err = p.FetchSensors(context.Background(), box)
	assert.Error(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestProvider_ExpiredEntriesRefetched(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := sensorcache.NewMemoryStore()
	store.SetClock(func() time.Time { return now })

	next := &countingProvider{readings: sampleReadings()}
	p := sensorcache.New(sensorcache.Config{
		Next:   next,
		Store:  store,
		TTL:    time.Minute,
		Logger: zerolog.New(io.Discard),
	})

	_, err := p.FetchSensors(context.Background(), box)
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	_, err = p.FetchSensors(context.Background(), box)
	require.NoError(t, err)
	assert.Equal(t, int32(1), next.calls.Load())

	now = now.Add(31 * time.Second)
	_, err = p.FetchSensors(context.Background(), box)
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestProvider_StoreFailuresBypassed(t *testing.T) {
	next := &countingProvider{readings: sampleReadings()}
	p := sensorcache.New(sensorcache.Config{
		Next:   next,
		Store:  brokenStore{},
		Logger: zerolog.New(io.Discard),
	})

	readings, err := p.FetchSensors(context.Background(), box)
	require.NoError(t, err)
	assert.Len(t, readings, 2)
}

func TestProvider_CorruptEntryIgnored(t *testing.T) {
	store := sensorcache.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), sensorcache.Key(box), []byte("{not json"), time.Minute))

	next := &countingProvider{readings: sampleReadings()}
	p := sensorcache.New(sensorcache.Config{
		Next:   next,
		Store:  store,
		Logger: zerolog.New(io.Discard),
	})

	readings, err := p.FetchSensors(context.Background(), box)
	require.NoError(t, err)
	assert.Len(t, readings, 2)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestMemoryStore_Miss(t *testing.T) {
	_, err := sensorcache.NewMemoryStore().Get(context.Background(), "absent")
	assert.ErrorIs(t, err, sensorcache.ErrMiss)
}
