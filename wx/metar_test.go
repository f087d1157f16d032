// wx/metar_test.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wx

import (
	"testing"
	"time"
)

func TestParseMETAR(t *testing.T) {
	ref := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)

	m, err := ParseMETAR("KSFO 251756Z 28015G25KT 10SM SCT030 BKN100 15/08 A2992", ref)
	if err != nil {
		t.Fatal(err)
	}
	if m.ICAO != "KSFO" {
		t.Errorf("ICAO = %q", m.ICAO)
	}
	if !m.Time.Equal(time.Date(2026, time.August, 25, 17, 56, 0, 0, time.UTC)) {
		t.Errorf("Time = %v", m.Time)
	}
	if m.WindDir == nil || *m.WindDir != 280 {
		t.Errorf("WindDir = %v", m.WindDir)
	}
	if m.WindSpeed == nil || *m.WindSpeed != 15 {
		t.Errorf("WindSpeed = %v", m.WindSpeed)
	}
	if m.WindGust == nil || *m.WindGust != 25 {
		t.Errorf("WindGust = %v", m.WindGust)
	}
	if m.Visibility == nil || *m.Visibility != 10 {
		t.Errorf("Visibility = %v", m.Visibility)
	}
	if len(m.Sky) != 2 || m.Sky[0] != (SkyLayer{"SCT", 3000}) || m.Sky[1] != (SkyLayer{"BKN", 10000}) {
		t.Errorf("Sky = %v", m.Sky)
	}
	if m.Temperature == nil || *m.Temperature != 15 {
		t.Errorf("Temperature = %v", m.Temperature)
	}
	if m.Dewpoint == nil || *m.Dewpoint != 8 {
		t.Errorf("Dewpoint = %v", m.Dewpoint)
	}
	if m.Altimeter == nil || *m.Altimeter != 29.92 {
		t.Errorf("Altimeter = %v", m.Altimeter)
	}
}

func TestParseMETARMetric(t *testing.T) {
	m, err := ParseMETAR("ZBAA 251800Z VRB02MPS 9999 FEW040 M02/M08 Q1012", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if m.WindDir != nil {
		t.Errorf("variable wind should leave WindDir nil, got %v", *m.WindDir)
	}
	if m.WindSpeed == nil || *m.WindSpeed != 4 { // 2 m/s is 4 kt, rounded
		t.Errorf("WindSpeed = %v", m.WindSpeed)
	}
	if m.VisibilityM == nil || *m.VisibilityM != 10000 {
		t.Errorf("VisibilityM = %v", m.VisibilityM)
	}
	if m.Temperature == nil || *m.Temperature != -2 {
		t.Errorf("Temperature = %v", m.Temperature)
	}
	if m.Dewpoint == nil || *m.Dewpoint != -8 {
		t.Errorf("Dewpoint = %v", m.Dewpoint)
	}
	if m.Altimeter == nil || *m.Altimeter != 1012*0.02953 {
		t.Errorf("Altimeter = %v", m.Altimeter)
	}
}

func TestParseMETARFraction(t *testing.T) {
	m, err := ParseMETAR("KJFK 251751Z 00000KT M1/4SM FG VV002 09/09 A2980", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if m.Visibility == nil || *m.Visibility != 0.25 {
		t.Errorf("Visibility = %v", m.Visibility)
	}
	if len(m.Sky) != 1 || m.Sky[0] != (SkyLayer{"VV", 200}) {
		t.Errorf("Sky = %v", m.Sky)
	}
}

func TestParseMETARCAVOK(t *testing.T) {
	m, err := ParseMETAR("EGLL 251750Z 27010KT CAVOK 18/09 Q1013", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if m.VisibilityM == nil || *m.VisibilityM != 10000 {
		t.Errorf("VisibilityM = %v", m.VisibilityM)
	}
	if len(m.Sky) != 0 {
		t.Errorf("Sky = %v", m.Sky)
	}
}

func TestParseMETARBadStation(t *testing.T) {
	if _, err := ParseMETAR("XY 251750Z", time.Time{}); err == nil {
		t.Error("expected error for short station identifier")
	}
}

func TestHasThunderstorm(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		want bool
	}{
		{"KMIA 251755Z 09012KT 8SM TSRA BKN025CB 28/24 A2998", true},
		{"KMIA 251755Z 09012KT 8SM -TSRA BKN025 28/24 A2998", true},
		{"KSFO 251756Z 28015KT 10SM SCT030 15/08 A2992", false},
	} {
		m, err := ParseMETAR(tc.raw, time.Time{})
		if err != nil {
			t.Fatal(err)
		}
		if got := m.HasThunderstorm(); got != tc.want {
			t.Errorf("%q: HasThunderstorm = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
