package composite

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestToDB(t *testing.T) {
	if got := ToDB(1.0); got != 0.0 {
		t.Errorf("ToDB(1) = %v, want 0", got)
	}
	if got := ToDB(10.0); math.Abs(got-10.0) > 1e-12 {
		t.Errorf("ToDB(10) = %v, want 10", got)
	}
	if got := ToDB(0); !math.IsInf(got, -1) {
		t.Errorf("ToDB(0) = %v, want -Inf", got)
	}
	if got := ToDB(-1); !math.IsNaN(got) {
		t.Errorf("ToDB(-1) = %v, want NaN", got)
	}

	prev := ToDB(1e-6)
	for _, x := range []float64{1e-5, 1e-3, 0.1, 0.5, 1, 2, 100, 1e6} {
		cur := ToDB(x)
		if cur <= prev {
			t.Errorf("ToDB not increasing at %v: %v <= %v", x, cur, prev)
		}
		prev = cur
	}
}

func TestRadarEvaluatePixel(t *testing.T) {
	radar := NewRadar(DefaultOptions())

	t.Run("unit and ten", func(t *testing.T) {
		out := radar.EvaluatePixel([]Sample{{BandVV: 1.0, BandVH: 10.0}})

		if out[BandVV][0] != 0 {
			t.Errorf("VV = %v, want 0", out[BandVV][0])
		}
		if math.Abs(out[BandVH][0]-10) > 1e-12 {
			t.Errorf("VH = %v, want 10", out[BandVH][0])
		}
		if out[BandWH][0] != 0 {
			t.Errorf("WH = %v, want 0", out[BandWH][0])
		}
	})

	t.Run("zero backscatter is non-finite", func(t *testing.T) {
		out := radar.EvaluatePixel([]Sample{{BandVV: 0.0, BandVH: 1.0}})

		if !math.IsInf(out[BandVV][0], -1) {
			t.Errorf("VV = %v, want -Inf", out[BandVV][0])
		}
		wh := out[BandWH][0]
		if !math.IsInf(wh, 0) && !math.IsNaN(wh) {
			t.Errorf("WH = %v, want non-finite", wh)
		}
	})

	t.Run("ratio uses decibel values", func(t *testing.T) {
		out := radar.EvaluatePixel([]Sample{{BandVV: 100, BandVH: 10}})
		// 20 dB / 10 dB / 10
		if math.Abs(out[BandWH][0]-0.2) > 1e-12 {
			t.Errorf("WH = %v, want 0.2", out[BandWH][0])
		}
	})

	t.Run("linear ratio policy", func(t *testing.T) {
		linear := NewRadar(Options{MonthKey: MonthKeyCalendar, RatioPolicy: RatioLinear})
		out := linear.EvaluatePixel([]Sample{{BandVV: 100, BandVH: 10}})
		if out[BandWH][0] != 10 {
			t.Errorf("WH = %v, want 10", out[BandWH][0])
		}
	})

	t.Run("order and length preserved", func(t *testing.T) {
		samples := []Sample{
			{BandVV: 1, BandVH: 10},
			{BandVV: 10, BandVH: 100},
			{BandVV: 1000, BandVH: 1},
		}
		out := radar.EvaluatePixel(samples)
		for _, band := range []string{BandVV, BandVH, BandWH} {
			if len(out[band]) != len(samples) {
				t.Fatalf("%s length = %d, want %d", band, len(out[band]), len(samples))
			}
		}
		want := []float64{0, 10, 30}
		for i, w := range want {
			if math.Abs(out[BandVV][i]-w) > 1e-9 {
				t.Errorf("VV[%d] = %v, want %v", i, out[BandVV][i], w)
			}
		}
	})
}

func TestOpticalEvaluatePixel(t *testing.T) {
	optical := NewOptical(DefaultOptions())

	samples := []Sample{
		{BandB02: 1, BandB03: 2, BandB04: 3, BandB08: 4, BandB11: 5, BandDataMask: 1, BandCLP: 10},
		{BandB02: 11, BandB03: 12, BandB04: 13, BandB08: 14, BandB11: 15, BandDataMask: 0, BandCLP: 255},
	}

	out := optical.EvaluatePixel(samples)

	if len(out) != 7 {
		t.Fatalf("expected 7 output bands, got %d", len(out))
	}
	for band, values := range out {
		if len(values) != len(samples) {
			t.Fatalf("%s length = %d, want %d", band, len(values), len(samples))
		}
		for i, v := range values {
			if v != samples[i][band] {
				t.Errorf("%s[%d] = %v, want %v", band, i, v, samples[i][band])
			}
		}
	}

	empty := optical.EvaluatePixel(nil)
	if len(empty[BandB02]) != 0 {
		t.Errorf("expected empty arrays for no samples, got %d", len(empty[BandB02]))
	}
}

func TestSetupDeclarations(t *testing.T) {
	optical := NewOptical(DefaultOptions()).Setup()
	if optical.Mosaicking != MosaickingOrbit {
		t.Errorf("optical mosaicking = %s, want ORBIT", optical.Mosaicking)
	}
	if optical.Input[0].Units != "DN" {
		t.Errorf("optical units = %q, want DN", optical.Input[0].Units)
	}
	wantTypes := map[string]SampleType{
		BandB02: SampleTypeUint16, BandB03: SampleTypeUint16, BandB04: SampleTypeUint16,
		BandB08: SampleTypeUint16, BandB11: SampleTypeUint16,
		BandDataMask: SampleTypeUint8, BandCLP: SampleTypeUint8,
	}
	for _, o := range optical.Output {
		if o.SampleType != wantTypes[o.ID] {
			t.Errorf("optical %s sample type = %s, want %s", o.ID, o.SampleType, wantTypes[o.ID])
		}
	}

	radar := NewRadar(DefaultOptions()).Setup()
	if got := radar.InputBands(); len(got) != 2 || got[0] != BandVV || got[1] != BandVH {
		t.Errorf("radar input bands = %v", got)
	}
	for _, o := range radar.Output {
		if o.SampleType != SampleTypeFloat32 {
			t.Errorf("radar %s sample type = %s, want FLOAT32", o.ID, o.SampleType)
		}
	}
}

func TestScriptHooks(t *testing.T) {
	for _, script := range []Script{NewOptical(DefaultOptions()), NewRadar(DefaultOptions())} {
		t.Run(script.Name(), func(t *testing.T) {
			c := NewCollection(orbitsAt("2021-02-10", "2021-01-20", "2021-01-05"))

			c = script.PreProcessScenes(c)
			if c.Scenes.Len() != 2 {
				t.Fatalf("expected 2 scenes, got %d", c.Scenes.Len())
			}

			outputs := script.Setup().Outputs()
			script.UpdateOutput(outputs, c)
			for id, o := range outputs {
				if o.Bands != 2 {
					t.Errorf("%s bands = %d, want 2", id, o.Bands)
				}
			}

			meta := &OutputMetadata{}
			if err := script.UpdateOutputMetadata(c.SceneList(), InputMetadata{}, meta); err != nil {
				t.Fatalf("UpdateOutputMetadata failed: %v", err)
			}

			raw, ok := meta.UserData[script.DatesKey()].(string)
			if !ok {
				t.Fatalf("user data %q missing or not a string: %v", script.DatesKey(), meta.UserData)
			}
			var dates []string
			if err := json.Unmarshal([]byte(raw), &dates); err != nil {
				t.Fatalf("dates not a JSON list: %v", err)
			}
			want := []string{"2021-01-05T00:00:00.000Z", "2021-02-10T00:00:00.000Z"}
			if len(dates) != len(want) {
				t.Fatalf("dates = %v, want %v", dates, want)
			}
			for i := range want {
				if dates[i] != want[i] {
					t.Errorf("dates[%d] = %s, want %s", i, dates[i], want[i])
				}
			}
		})
	}
}

func TestParseDates(t *testing.T) {
	meta := &OutputMetadata{}
	scenes := []Scene{
		{Date: time.Date(2021, 1, 5, 10, 30, 0, 0, time.UTC)},
		{Date: time.Date(2021, 2, 10, 0, 0, 0, 0, time.UTC)},
	}
	if err := WriteDates(meta, DatesKey, scenes); err != nil {
		t.Fatalf("WriteDates failed: %v", err)
	}

	got, err := ParseDates(meta.UserData, DatesKey)
	if err != nil {
		t.Fatalf("ParseDates failed: %v", err)
	}
	if len(got) != 2 || !got[0].Equal(scenes[0].Date) || !got[1].Equal(scenes[1].Date) {
		t.Errorf("ParseDates = %v, want %v", got, scenes)
	}

	_, err = ParseDates(meta.UserData, AcquisitionDatesKey)
	if !errors.Is(err, ErrMissingDates) {
		t.Errorf("expected ErrMissingDates, got %v", err)
	}

	_, err = ParseDates(map[string]any{DatesKey: `["not a date"]`}, DatesKey)
	if err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Time
	}{
		{"2021-01-05T10:30:00Z", time.Date(2021, 1, 5, 10, 30, 0, 0, time.UTC)},
		{"2021-01-05T10:30:00.000Z", time.Date(2021, 1, 5, 10, 30, 0, 0, time.UTC)},
		{"2021-01-05T12:30:00+02:00", time.Date(2021, 1, 5, 10, 30, 0, 0, time.UTC)},
		{"2021-01-05T10:30:00.000000", time.Date(2021, 1, 5, 10, 30, 0, 0, time.UTC)},
		{"2021-01-05", time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTime(tt.input)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !got.Equal(tt.expected) {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}

	if _, err := ParseTime(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestSampleTypeConvert(t *testing.T) {
	tests := []struct {
		name     string
		st       SampleType
		input    float64
		expected float64
	}{
		{"uint16 passthrough", SampleTypeUint16, 1234, 1234},
		{"uint16 truncates", SampleTypeUint16, 1234.9, 1234},
		{"uint16 clamps high", SampleTypeUint16, 70000, 65535},
		{"uint16 clamps negative", SampleTypeUint16, -5, 0},
		{"uint8 clamps high", SampleTypeUint8, 300, 255},
		{"uint8 nan", SampleTypeUint8, math.NaN(), 0},
		{"float32 precision", SampleTypeFloat32, 0.1, float64(float32(0.1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.st.Convert(tt.input); got != tt.expected {
				t.Errorf("Convert(%v) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}

	if got := SampleTypeFloat32.Convert(math.Inf(-1)); !math.IsInf(got, -1) {
		t.Errorf("float32 should keep -Inf, got %v", got)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(DefaultOptions())

	names := r.Names()
	if len(names) != 2 || names[0] != RadarName || names[1] != OpticalName {
		t.Errorf("Names() = %v", names)
	}

	s, err := r.Get(OpticalName)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", OpticalName, err)
	}
	if s.DatesKey() != DatesKey {
		t.Errorf("optical dates key = %s, want %s", s.DatesKey(), DatesKey)
	}

	if _, err := r.Get("landsat"); !errors.Is(err, ErrUnknownScript) {
		t.Errorf("expected ErrUnknownScript, got %v", err)
	}
}

func TestParseRatioPolicy(t *testing.T) {
	if p, err := ParseRatioPolicy(""); err != nil || p != RatioDecibelScaled {
		t.Errorf("ParseRatioPolicy(\"\") = %s, %v", p, err)
	}
	if p, err := ParseRatioPolicy("LINEAR"); err != nil || p != RatioLinear {
		t.Errorf("ParseRatioPolicy(LINEAR) = %s, %v", p, err)
	}
	if _, err := ParseRatioPolicy("log"); !errors.Is(err, ErrUnknownRatioPolicy) {
		t.Errorf("expected ErrUnknownRatioPolicy, got %v", err)
	}
}
