package telemetry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReadingScenarioA(t *testing.T) {
	payload := []byte(`{"building":"b1","zone":"zone-101","temperature":24.0,"humidity":50.0,"occupancy":1,"ts":1700000000}`)

	r, err := ParseTelemetryMessage("building/b1/zone/zone-101/telemetry", payload)
	require.NoError(t, err)
	assert.Equal(t, Reading{
		Building:    "b1",
		Zone:        "zone-101",
		Temperature: 24.0,
		Humidity:    50.0,
		Occupancy:   1,
		Timestamp:   1700000000,
	}, r)
}

func TestParseReadingOccupancyDefaultsToZero(t *testing.T) {
	r, err := ParseReading([]byte(`{"building":"b1","zone":"z","temperature":21.5,"humidity":40}`))
	require.NoError(t, err)
	assert.Equal(t, 0, r.Occupancy)
	assert.Equal(t, int64(0), r.Timestamp)
}

func TestParseReadingRejects(t *testing.T) {
	cases := map[string]struct {
		payload string
		want    error
	}{
		"not json":             {`{"building":`, ErrMalformedPayload},
		"missing building":     {`{"zone":"z","temperature":1,"humidity":2}`, ErrMissingField},
		"empty zone":           {`{"building":"b","zone":"","temperature":1,"humidity":2}`, ErrMissingField},
		"missing temperature":  {`{"building":"b","zone":"z","humidity":2}`, ErrMissingField},
		"missing humidity":     {`{"building":"b","zone":"z","temperature":1}`, ErrMissingField},
		"string temperature":   {`{"building":"b","zone":"z","temperature":"hot","humidity":2}`, ErrInvalidField},
		"occupancy out of set": {`{"building":"b","zone":"z","temperature":1,"humidity":2,"occupancy":3}`, ErrInvalidField},
		"wildcard in zone":     {`{"building":"b","zone":"z/+","temperature":1,"humidity":2}`, ErrInvalidField},
		"colon in building":    {`{"building":"a:b","zone":"c","temperature":1,"humidity":2}`, ErrInvalidField},
		"colon in zone":        {`{"building":"a","zone":"b:c","temperature":1,"humidity":2}`, ErrInvalidField},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseReading([]byte(tc.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestParseTelemetryMessageTopicChecks(t *testing.T) {
	payload := []byte(`{"building":"b1","zone":"zone-101","temperature":24,"humidity":50}`)

	_, err := ParseTelemetryMessage("building/b1/zone/zone-102/telemetry", payload)
	assert.ErrorIs(t, err, ErrTopicMismatch)

	_, err = ParseTelemetryMessage("building/b1/zone/zone-101/command", payload)
	assert.ErrorIs(t, err, ErrInvalidTopic)

	_, err = ParseTelemetryMessage("sensors/readings", payload)
	assert.ErrorIs(t, err, ErrInvalidTopic)
}

func TestParseTopic(t *testing.T) {
	tp, err := ParseTopic("building/b1/zone/zone-101/command")
	require.NoError(t, err)
	assert.Equal(t, Topic{Building: "b1", Zone: "zone-101", Kind: KindCommand}, tp)

	for _, bad := range []string{
		"",
		"building/b1/zone/zone-101",
		"building/+/zone/zone-101/telemetry",
		"building//zone/zone-101/telemetry",
		"bldg/b1/zone/zone-101/telemetry",
		"building/b1/zone/zone-101/status",
		"building/b1/zone/zone-101/telemetry/extra",
		"building/a:b/zone/c/command",
	} {
		_, err := ParseTopic(bad)
		assert.ErrorIs(t, err, ErrInvalidTopic, bad)
	}
}

func TestTopicBuilders(t *testing.T) {
	assert.Equal(t, "building/b1/zone/zone-101/telemetry", TelemetryTopic("b1", "zone-101"))
	assert.Equal(t, "building/b1/zone/zone-101/command", CommandTopic("b1", "zone-101"))
	assert.Equal(t, "building/b1/zone/+/command", CommandSubscription("b1"))
}

func TestFanSpeedMappingIsTotal(t *testing.T) {
	assert.Equal(t, FanLow, FanSpeedFromCode(0))
	assert.Equal(t, FanMedium, FanSpeedFromCode(1))
	assert.Equal(t, FanHigh, FanSpeedFromCode(2))
	for _, code := range []int{-100, -1, 3, 4, 1 << 20} {
		assert.Equal(t, FanUnknown, FanSpeedFromCode(code), code)
	}

	code, ok := FanHigh.Code()
	assert.True(t, ok)
	assert.Equal(t, 2, code)
	_, ok = FanUnknown.Code()
	assert.False(t, ok)
}

func TestNewCommandScenarioB(t *testing.T) {
	cmd := NewCommand("b1", "zone-101", 22.5, 1)
	b, err := json.Marshal(cmd)
	require.NoError(t, err)
	assert.JSONEq(t, `{"building":"b1","zone_id":"zone-101","set_temp":22.5,"fan_speed":"medium"}`, string(b))
}

func TestNewCommandRounding(t *testing.T) {
	assert.Equal(t, 21.3, NewCommand("b", "z", 21.26, 0).SetTemp)
	// half to even: 0.5 -> 0, 1.5 -> 2, 2.5 -> 2
	assert.Equal(t, FanLow, NewCommand("b", "z", 21, 0.5).FanSpeed)
	assert.Equal(t, FanHigh, NewCommand("b", "z", 21, 1.5).FanSpeed)
	assert.Equal(t, FanHigh, NewCommand("b", "z", 21, 2.5).FanSpeed)
	assert.Equal(t, FanUnknown, NewCommand("b", "z", 21, 3.4).FanSpeed)
	assert.Equal(t, FanMedium, NewCommand("b", "z", 21, 0.51).FanSpeed)
}

func TestNewCommandSetTempTies(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{22.25, 22.2}, // přesná remíza -> sudá číslice
		{22.35, 22.4}, // 22.35000000000000142...
		{21.45, 21.4}, // 21.44999999999999929...
		{0.05, 0.1},   // 0.05000000000000000277...
		{-22.25, -22.2},
		{23, 23},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NewCommand("b", "z", tc.in, 0).SetTemp, "set_temp pro %v", tc.in)
	}
}

func TestRoundPlaces(t *testing.T) {
	assert.Equal(t, 1.0, Round(1.005, 2))  // 1.00499999999999989...
	assert.Equal(t, 2.67, Round(2.675, 2)) // 2.67499999999999982...
	assert.Equal(t, 45.2, Round(45.25, 1))
	assert.Equal(t, 45.4, Round(45.35, 1))
}

func TestParseCommand(t *testing.T) {
	c, err := ParseCommandMessage("building/b1/zone/zone-101/command",
		[]byte(`{"building":"b1","zone_id":"zone-101","set_temp":22.5,"fan_speed":"medium"}`))
	require.NoError(t, err)
	assert.Equal(t, Command{Building: "b1", ZoneID: "zone-101", SetTemp: 22.5, FanSpeed: FanMedium}, c)

	_, err = ParseCommand([]byte(`{"building":"b1","zone_id":"zone-101","fan_speed":"low"}`))
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = ParseCommand([]byte(`{"building":"b1","zone_id":"zone-101","set_temp":22,"fan_speed":"turbo"}`))
	assert.ErrorIs(t, err, ErrUnknownFanSpeed)

	_, err = ParseCommandMessage("building/b1/zone/zone-102/command",
		[]byte(`{"building":"b1","zone_id":"zone-101","set_temp":22.5,"fan_speed":"medium"}`))
	assert.ErrorIs(t, err, ErrTopicMismatch)
}
