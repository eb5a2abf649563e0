package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAgeRange(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   AgeRange
		wantOK bool
	}{
		{name: "bounded", input: "50-59", want: AgeRange{50, 59}, wantOK: true},
		{name: "bounded with spaces", input: " 18 - 29 ", want: AgeRange{18, 29}, wantOK: true},
		{name: "single age", input: "40-40", want: AgeRange{40, 40}, wantOK: true},
		{name: "open ended", input: "70+", want: AgeRange{70, 200}, wantOK: true},
		{name: "open ended with space", input: "65 +", want: AgeRange{65, 200}, wantOK: true},
		{name: "zero lower bound", input: "0-17", want: AgeRange{0, 17}, wantOK: true},
		{name: "inverted", input: "59-50", wantOK: false},
		{name: "negative", input: "-5-10", wantOK: false},
		{name: "empty", input: "", wantOK: false},
		{name: "words", input: "adult", wantOK: false},
		{name: "bare number", input: "42", wantOK: false},
		{name: "decimal", input: "18.5-30", wantOK: false},
		{name: "open beyond ceiling", input: "250+", wantOK: false},
		{name: "trailing junk", input: "50-59yrs", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseAgeRange(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestAgeRange_Overlaps(t *testing.T) {
	tests := []struct {
		name string
		req  string
		user string
		want bool
	}{
		{name: "disjoint above", req: "50-59", user: "60-65", want: false},
		{name: "partial overlap", req: "50-59", user: "55-65", want: true},
		{name: "open ended request", req: "70+", user: "65-75", want: true},
		{name: "touching edges", req: "30-39", user: "39-45", want: true},
		{name: "disjoint below", req: "30-39", user: "18-29", want: false},
		{name: "contained", req: "18-80", user: "40-49", want: true},
		{name: "both open", req: "70+", user: "80+", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := ParseAgeRange(tt.req)
			assert.True(t, ok)
			b, ok := ParseAgeRange(tt.user)
			assert.True(t, ok)
			assert.Equal(t, tt.want, a.Overlaps(b))
			assert.Equal(t, tt.want, b.Overlaps(a), "overlap must be symmetric")
		})
	}
}
