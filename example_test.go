package mailprobe_test

import (
	"context"
	"fmt"
	"net"

	"github.com/optimode/mailprobe"
	"github.com/optimode/mailprobe/types"
)

// staticMX answers every domain with a single exchange.
func staticMX(_ context.Context, domain string) ([]*net.MX, error) {
	return []*net.MX{{Host: "mx." + domain + ".", Pref: 10}}, nil
}

func ExampleNew() {
	v := mailprobe.New()
	result, _ := v.Validate(context.Background(), "invalid-email")
	fmt.Println(result.Status, result.Score)
	// Output: invalid 0
}

func ExampleValidator_Validate() {
	v := mailprobe.New().WithDNS(mailprobe.DNSOptions{Lookup: staticMX})
	ctx := context.Background()

	result, _ := v.Validate(ctx, "test@mailinator.com")
	fmt.Println(result.Disposable, result.Status, result.Score)

	result, _ = v.Validate(ctx, "admin@example.com", mailprobe.ValidateOptions{SkipSMTP: true})
	fmt.Println(result.RoleAccount, result.MX, result.Status, result.Score)
	// Output:
	// true invalid 0
	// true [mx.example.com] risky 50
}

func ExampleValidator_Validate_strictDomain() {
	v := mailprobe.New().WithDNS(mailprobe.DNSOptions{Lookup: staticMX})

	result, _ := v.Validate(context.Background(), "someone@yahoo.com")
	fmt.Println(result.Status, result.Score, result.SMTP.Code)
	// Output: valid 85 SKIPPED
}

func ExampleValidator_Validate_idn() {
	v := mailprobe.New().WithDNS(mailprobe.DNSOptions{Lookup: staticMX})

	// Internationalized Domain Name (German); DNS and SMTP see punycode.
	result, _ := v.Validate(context.Background(), "user@münchen.de", mailprobe.ValidateOptions{SkipSMTP: true})
	fmt.Println(result.MX)
	// Output: [mx.xn--mnchen-3ya.de]
}

type acceptAll struct{}

func (acceptAll) Probe(_ context.Context, mxHost, _ string) types.SMTPOutcome {
	return types.SMTPOutcome{OK: true, Message: "250 OK", MXHost: mxHost, SMTPCode: 250}
}

func ExampleValidator_ValidateMany() {
	v := mailprobe.New().
		WithDNS(mailprobe.DNSOptions{Lookup: staticMX}).
		WithProber(acceptAll{})
	emails := []string{"alice@example.com", "invalid", "support@example.org"}

	results, _ := v.ValidateMany(context.Background(), emails, mailprobe.ConcurrencyOptions{
		Workers: 2,
	})
	for _, r := range results {
		fmt.Println(r.Email, r.Status, r.Score)
	}
	// Output:
	// alice@example.com valid 95
	// invalid invalid 0
	// support@example.org risky 75
}
