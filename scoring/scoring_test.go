package scoring

import (
	"errors"
	"testing"

	"github.com/onnwee/hmad-scout/match"
)

func TestNormalizePattern(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"GPP GPPG", "GPPGPPG"},
		{"gpp-gpp", "GPPGPP"},
		{"", ""},
		{"xyz", ""},
		{"PPPPPPPPPPPP", "PPPPPPPPP"},
		{"p g p g p g p g p g", "PGPGPGPGP"},
	}
	for _, tt := range tests {
		if got := NormalizePattern(tt.in); got != tt.want {
			t.Errorf("NormalizePattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMotifMatches(t *testing.T) {
	target := Target("GPP")
	if target != "GPPGPPGPP" {
		t.Fatalf("Target = %q", target)
	}
	tests := []struct {
		pattern string
		want    int
	}{
		{NormalizePattern("GPP GPPG"), 7},
		{"", 0},
		{"PGGPGGPGG", 0},
		{"GPPGPPGPP", 9},
		{"G", 1},
	}
	for _, tt := range tests {
		if got := MotifMatches(target, tt.pattern); got != tt.want {
			t.Errorf("MotifMatches(%q) = %d, want %d", tt.pattern, got, tt.want)
		}
	}
}

func TestCompute(t *testing.T) {
	m := match.New()
	_, _ = m.AppendCycle(3, 2, 1000, match.PhaseAuto)
	m.AppendGate(2000, match.PhaseAuto)
	_, _ = m.AppendCycle(3, 3, 50000, match.PhaseTeleop)

	tests := []struct {
		name string
		in   Input
		want Breakdown
	}{
		{
			name: "artifacts only",
			in:   Input{},
			want: Breakdown{ArtifactPoints: 15, Total: 15},
		},
		{
			name: "motif auto and teleop",
			in:   Input{Motif: "GPP", AutoPattern: "GPPGPPG", TeleopPattern: "GPPGPPGPP"},
			want: Breakdown{
				ArtifactPoints: 15,
				MotifPoints:    MotifPoints{Auto: 14, Teleop: 18, Total: 32},
				Total:          47,
			},
		},
		{
			name: "no motif ignores patterns",
			in:   Input{AutoPattern: "GPP", TeleopPattern: "PPP"},
			want: Breakdown{ArtifactPoints: 15, Total: 15},
		},
		{
			name: "leave and full park",
			in:   Input{AutoLeave: true, TeleopPark: ParkFull},
			want: Breakdown{ArtifactPoints: 15, LeavePoints: 3, ParkPoints: 10, Total: 28},
		},
		{
			name: "partial park",
			in:   Input{TeleopPark: ParkPartial},
			want: Breakdown{ArtifactPoints: 15, ParkPoints: 5, Total: 20},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(*m, tt.in)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if got != tt.want {
				t.Errorf("Compute() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestComputeRejectsUnnormalizedInput(t *testing.T) {
	m := match.New()
	bad := []Input{
		{Motif: "gpp"},
		{Motif: "GP"},
		{Motif: "GPPG"},
		{Motif: "GPP", AutoPattern: "GPP GPP"},
		{Motif: "GPP", TeleopPattern: "GPPGPPGPPG"},
		{TeleopPark: "hanging"},
	}
	for _, in := range bad {
		if _, err := Compute(*m, in); !errors.Is(err, match.ErrValidation) {
			t.Errorf("Compute(%+v) error = %v, want ErrValidation", in, err)
		}
	}
}

func TestInputNormalize(t *testing.T) {
	in := Input{Motif: "g p p", AutoPattern: "gpp gppg", TeleopPattern: "??"}.Normalize()
	if in.Motif != "GPP" || in.AutoPattern != "GPPGPPG" || in.TeleopPattern != "" {
		t.Errorf("Normalize() = %+v", in)
	}
}

func TestParsePark(t *testing.T) {
	for in, want := range map[string]Park{"": ParkNone, "NONE": ParkNone, "Partial": ParkPartial, "full": ParkFull} {
		got, err := ParsePark(in)
		if err != nil || got != want {
			t.Errorf("ParsePark(%q) = %q, %v", in, got, err)
		}
	}
}
