package gcode

import "testing"

func TestParseLineLinearMove(t *testing.T) {
	p := NewParser()
	cmd, err := p.ParseLine("G1 X10.5 Y-2 F500")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Type != 'G' || cmd.Number != 1 {
		t.Fatalf("expected G1, got %c%d", cmd.Type, cmd.Number)
	}
	if cmd.GetParameter('X', 0) != 10.5 {
		t.Errorf("expected X=10.5, got %v", cmd.GetParameter('X', 0))
	}
	if cmd.GetParameter('Y', 0) != -2 {
		t.Errorf("expected Y=-2, got %v", cmd.GetParameter('Y', 0))
	}
	if cmd.GetParameter('F', 0) != 500 {
		t.Errorf("expected F=500, got %v", cmd.GetParameter('F', 0))
	}
}

func TestParseLineBlankAndComment(t *testing.T) {
	p := NewParser()
	blank, _ := p.ParseLine("   ")
	if blank != nil {
		t.Error("expected nil Command for a blank line")
	}
	comment, _ := p.ParseLine("; this is a comment")
	if comment == nil || comment.Comment == "" {
		t.Error("expected the comment text to be preserved")
	}
}

func TestParseLineMissingNumberDoesNotError(t *testing.T) {
	p := NewParser()
	cmd, err := p.ParseLine("G1 X")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.HasParameter('X') {
		t.Error("expected a bare X with no value to be dropped, not recorded")
	}
}

func TestParseLineLowercaseIsNormalized(t *testing.T) {
	p := NewParser()
	cmd, _ := p.ParseLine("g0 x1 y2")
	if cmd.Type != 'G' {
		t.Errorf("expected lowercase g to normalize to G, got %c", cmd.Type)
	}
	if !cmd.HasParameter('X') || !cmd.HasParameter('Y') {
		t.Error("expected lowercase axis letters to be recorded as uppercase keys")
	}
}
