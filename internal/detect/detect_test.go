package detect

import (
	"reflect"
	"testing"
)

func TestDetect_TypicalLeadList(t *testing.T) {
	headers := []string{"Customer Name", "Mobile Number", "Email Address"}
	res := Detect(headers)

	phone := res[FieldPhone]
	if phone.Header != "Mobile Number" {
		t.Fatalf("phone header = %q, want %q", phone.Header, "Mobile Number")
	}
	if phone.Confidence < 0.5 {
		t.Errorf("phone confidence = %v, want >= 0.5", phone.Confidence)
	}

	if got := res[FieldName].Header; got != "Customer Name" {
		t.Errorf("name header = %q, want %q", got, "Customer Name")
	}
	if got := res[FieldEmail].Header; got != "Email Address" {
		t.Errorf("email header = %q, want %q", got, "Email Address")
	}
}

func TestDetect_Scoring(t *testing.T) {
	tests := []struct {
		name       string
		headers    []string
		field      Field
		wantHeader string
		wantConf   float64
	}{
		{
			name:       "exact match scores full confidence",
			headers:    []string{"phone"},
			field:      FieldPhone,
			wantHeader: "phone",
			wantConf:   1,
		},
		{
			name:       "normalization ignores case and punctuation",
			headers:    []string{"PHONE_NUMBER!"},
			field:      FieldPhone,
			wantHeader: "PHONE_NUMBER!",
			wantConf:   1,
		},
		{
			name:       "contains pattern scores half",
			headers:    []string{"cell count"},
			field:      FieldPhone,
			wantHeader: "cell count",
			wantConf:   0.5,
		},
		{
			name:       "prefix of a pattern scores low",
			headers:    []string{"mobi"},
			field:      FieldPhone,
			wantHeader: "mobi",
			wantConf:   0.2,
		},
		{
			name:       "short headers never reverse-match",
			headers:    []string{"mo"},
			field:      FieldPhone,
			wantHeader: "",
			wantConf:   0,
		},
		{
			name:       "no candidates",
			headers:    []string{"Address", "City", "State"},
			field:      FieldPhone,
			wantHeader: "",
			wantConf:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := Detect(tt.headers)[tt.field]
			if det.Header != tt.wantHeader {
				t.Errorf("header = %q, want %q", det.Header, tt.wantHeader)
			}
			if det.Confidence != tt.wantConf {
				t.Errorf("confidence = %v, want %v", det.Confidence, tt.wantConf)
			}
		})
	}
}

func TestDetect_Alternates(t *testing.T) {
	headers := []string{"phone", "mobile", "cell", "telephone", "contact number"}
	det := Detect(headers)[FieldPhone]

	// "telephone" matches both the exact pattern and the contained
	// "phone" substring, so it outranks the single-pattern matches.
	if det.Header != "telephone" {
		t.Fatalf("header = %q, want %q", det.Header, "telephone")
	}
	want := []string{"phone", "mobile", "cell"}
	if !reflect.DeepEqual(det.Alternates, want) {
		t.Fatalf("alternates = %v, want %v", det.Alternates, want)
	}
}

func TestDetect_Deterministic(t *testing.T) {
	headers := []string{"Name", "Phone", "Cell Phone", "Email", "Backup Email"}
	first := Detect(headers)
	for i := 0; i < 10; i++ {
		if got := Detect(headers); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %#v vs %#v", i, got, first)
		}
	}
}
