package main

import (
	"context"
	"reflect"
	"testing"
)

func TestParseCodes(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "embedded in prose",
			text: "foo ABCD-1234-EFGH-5678-IJKL bar",
			want: []string{"ABCD-1234-EFGH-5678-IJKL"},
		},
		{
			name: "pasted twice",
			text: "ABCD-1234-EFGH-5678-IJKL\nABCD-1234-EFGH-5678-IJKL",
			want: []string{"ABCD-1234-EFGH-5678-IJKL"},
		},
		{
			name: "lower case is normalized and deduped",
			text: "wxyz9-k3jtb-bbbbb-ttttt-55555 then WXYZ9-K3JTB-BBBBB-TTTTT-55555",
			want: []string{"WXYZ9-K3JTB-BBBBB-TTTTT-55555"},
		},
		{
			name: "first seen order",
			text: "22222-22222-22222-22222-22222, 11111-11111-11111-11111-11111; 22222-22222-22222-22222-22222",
			want: []string{"22222-22222-22222-22222-22222", "11111-11111-11111-11111-11111"},
		},
		{
			name: "too few groups",
			text: "ABCD-1234-EFGH-5678",
			want: []string{},
		},
		{
			name: "groups too long",
			text: "ABCDEF-1234-EFGH-5678-IJKL",
			want: []string{},
		},
		{
			name: "empty",
			text: "",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCodes(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseCodes(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseCodesIsIdempotent(t *testing.T) {
	text := "a ABCD-1234-EFGH-5678-IJKL b wxyz9-k3jtb-bbbbb-ttttt-55555"
	first := ParseCodes(text)
	joined := ""
	for _, c := range first {
		joined += c + " "
	}
	if second := ParseCodes(joined); !reflect.DeepEqual(first, second) {
		t.Errorf("reparsing changed the result: %v then %v", first, second)
	}
}

func TestIsCode(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ABCD-1234-EFGH-5678-IJKL", true},
		{"  abcd-1234-efgh-5678-ijkl  ", true},
		{"x ABCD-1234-EFGH-5678-IJKL", false},
		{"ABCD-1234", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsCode(tt.in); got != tt.want {
			t.Errorf("IsCode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFilterUnattempted(t *testing.T) {
	ledger := NewLedger(nil)
	if err := ledger.MarkAttempted(context.Background(), "BBBB-BBBB-BBBB-BBBB-BBBB"); err != nil {
		t.Fatal(err)
	}

	codes := []string{"AAAA-AAAA-AAAA-AAAA-AAAA", "BBBB-BBBB-BBBB-BBBB-BBBB", "CCCC-CCCC-CCCC-CCCC-CCCC"}
	fresh, skipped := FilterUnattempted(codes, ledger)

	if want := []string{"AAAA-AAAA-AAAA-AAAA-AAAA", "CCCC-CCCC-CCCC-CCCC-CCCC"}; !reflect.DeepEqual(fresh, want) {
		t.Errorf("fresh = %v, want %v", fresh, want)
	}
	if want := []string{"BBBB-BBBB-BBBB-BBBB-BBBB"}; !reflect.DeepEqual(skipped, want) {
		t.Errorf("skipped = %v, want %v", skipped, want)
	}
}

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		in      string
		want    Platform
		wantErr bool
	}{
		{"Steam", PlatformSteam, false},
		{"steam", PlatformSteam, false},
		{"Xbox Live", PlatformXbox, false},
		{"xbox", PlatformXbox, false},
		{"XBL", PlatformXbox, false},
		{" epic ", PlatformEpic, false},
		{"psn", PlatformPSN, false},
		{"PlayStation", PlatformPSN, false},
		{"Stadia", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePlatform(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePlatform(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePlatform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedeemLabel(t *testing.T) {
	if got := PlatformXbox.RedeemLabel(); got != "redeem for xbox live" {
		t.Errorf("RedeemLabel() = %q", got)
	}
}
