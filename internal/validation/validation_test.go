package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIsValidCardNumber(t *testing.T) {
	tests := []struct {
		pan  string
		want bool
	}{
		{"4111111111111111", true},  // classic test PAN
		{"424242424242", true},      // 12-digit, valid Luhn
		{"4111111111111112", false}, // bad check digit
		{"41111111111", false},      // too short
		{"41111111111111111111", false}, // too long
		{"4111-1111-1111-1111", false},  // separators not accepted
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidCardNumber(tt.pan); got != tt.want {
			t.Errorf("IsValidCardNumber(%q) = %v, want %v", tt.pan, got, tt.want)
		}
	}
}

func TestIsValidCardFormat(t *testing.T) {
	tests := []struct {
		pan  string
		want bool
	}{
		{"4111111111111111", true},
		{"4111111111111112", true}, // bad check digit, shape is fine
		{"5999000000000009", true},
		{"41111111111", false}, // too short
		{"41111111111111111111", false},
		{"4111-1111-1111-1111", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidCardFormat(tt.pan); got != tt.want {
			t.Errorf("IsValidCardFormat(%q) = %v, want %v", tt.pan, got, tt.want)
		}
	}
}

func TestIsValidAccountID(t *testing.T) {
	valid := []string{"acct-1", "ACCT_42", "a"}
	for _, id := range valid {
		if !IsValidAccountID(id) {
			t.Errorf("Expected %q valid", id)
		}
	}
	invalid := []string{"", "acct 1", "acct/1", strings.Repeat("a", 65)}
	for _, id := range invalid {
		if IsValidAccountID(id) {
			t.Errorf("Expected %q invalid", id)
		}
	}
}

func TestIsValidCategoryCode(t *testing.T) {
	if !IsValidCategoryCode("5411") {
		t.Error("Expected 5411 valid")
	}
	for _, code := range []string{"541", "54111", "54a1", ""} {
		if IsValidCategoryCode(code) {
			t.Errorf("Expected %q invalid", code)
		}
	}
}

func TestMaskCardNumber(t *testing.T) {
	if got := MaskCardNumber("4111111111111111"); got != "************1111" {
		t.Errorf("MaskCardNumber = %q", got)
	}
	if got := MaskCardNumber("1111"); got != "1111" {
		t.Errorf("Short values pass through, got %q", got)
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 100); got != "helloworld" {
		t.Errorf("SanitizeString = %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("Expected truncation, got %q", got)
	}
}

func TestValidAmount(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"125.50", false},
		{"0.01", false},
		{"1000", false},
		{"", false}, // use Required for required fields
		{"0", true},
		{"0.00", true},
		{"-5.00", true},
		{"1.2.3", true},
		{".50", true},
		{"50.", true},
		{"1.005", true}, // sub-cent precision rejected
		{"12a.50", true},
	}
	for _, tt := range tests {
		err := ValidAmount("amount", tt.value)()
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidAmount(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	errs := Validate(
		Required("accountId", ""),
		ValidCardNumber("cardNumber", "not-a-pan"),
		ValidAmount("amount", "125.50"),
	)
	if len(errs) != 2 {
		t.Fatalf("Expected 2 errors, got %d: %v", len(errs), errs)
	}
	if errs.Error() != "accountId: is required" {
		t.Errorf("Error() = %q", errs.Error())
	}
}

func TestValidate_NoErrors(t *testing.T) {
	errs := Validate(
		Required("accountId", "acct-1"),
		ValidCardNumber("cardNumber", "4111111111111111"),
	)
	if len(errs) != 0 {
		t.Errorf("Expected no errors, got %v", errs)
	}
}

func TestMaxLength(t *testing.T) {
	if err := MaxLength("name", "short", 10)(); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
	if err := MaxLength("name", "this is far too long", 5)(); err == nil {
		t.Error("Expected error for long value")
	}
}

func TestAccountParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/accounts/:id", AccountParamMiddleware(), func(c *gin.Context) { c.Status(200) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/accounts/acct-1", nil))
	if w.Code != 200 {
		t.Errorf("Valid id: status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/accounts/bad%20id", nil))
	if w.Code != 400 {
		t.Errorf("Invalid id: status = %d, want 400", w.Code)
	}
}
