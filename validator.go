package mailprobe

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/optimode/mailprobe/check"
	"github.com/optimode/mailprobe/internal/hostlimit"
	"github.com/optimode/mailprobe/probe"
	"github.com/optimode/mailprobe/types"
)

// strictSkipReason is reported when a strict domain is estimated
// instead of probed.
const strictSkipReason = "domain blocks unauthenticated SMTP probing"

// Validator is the main fluent builder struct.
// Instantiate with the New() function. Once built, Validate is safe for
// concurrent use; the With* methods are not.
type Validator struct {
	classifier *check.Classifier
	typos      *check.TypoSuggester
	mx         *check.MXResolver
	reputation *check.ReputationChecker
	limiter    *hostlimit.Limiter

	probeCfg probe.Config
	prober   probe.Prober
	oauth    *OAuthOptions
	strict   probe.Prober // probes strict domains; nil means estimate

	logger *zap.Logger
	err    error // configuration error, returned on Validate()
}

// New creates a Validator with the built-in lists, the system resolver
// and a plain SMTP probe using the default identity.
func New() *Validator {
	v := &Validator{
		classifier: check.NewClassifier(check.DefaultLists()),
		typos:      check.NewTypoSuggester(2),
		logger:     zap.NewNop(),
	}
	v.mx = newResolver(defaultDNSOptions())
	v.prober = probe.New(v.probeCfg)
	return v
}

// WithClassifier replaces the disposable, role and strict lists.
func (v *Validator) WithClassifier(l check.Lists) *Validator {
	v.classifier = check.NewClassifier(l)
	return v
}

// WithDNS overrides the default DNSOptions. The MX cache starts empty.
func (v *Validator) WithDNS(opts DNSOptions) *Validator {
	def := defaultDNSOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = def.CacheTTL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = def.CacheSize
	}
	v.mx = newResolver(opts)
	return v
}

func newResolver(o DNSOptions) *check.MXResolver {
	cfg := check.DNSConfig{Timeout: o.Timeout, CacheTTL: o.CacheTTL, MaxEntries: o.CacheSize}
	if o.Lookup != nil {
		return check.NewMXResolverWithLookup(cfg, o.Lookup)
	}
	return check.NewMXResolver(cfg)
}

// WithSMTP configures the probe identity and transport.
// SMTPOptions.HeloName and MailFrom are required.
func (v *Validator) WithSMTP(opts SMTPOptions) *Validator {
	if opts.HeloName == "" || opts.MailFrom == "" {
		v.err = ErrInvalidSMTPOptions
		return v
	}
	v.probeCfg = probe.Config{
		HeloName:  opts.HeloName,
		MailFrom:  opts.MailFrom,
		Port:      opts.Port,
		Timeouts:  opts.Timeouts,
		Dial:      opts.Dial,
		TLSConfig: opts.TLSConfig,
	}
	v.prober = probe.New(v.probeCfg)
	if v.oauth != nil {
		v.strict = v.newOAuthClient(*v.oauth)
	}
	return v
}

// WithProber replaces the plain SMTP probe.
func (v *Validator) WithProber(p probe.Prober) *Validator {
	v.prober = p
	return v
}

// WithOAuth probes strict domains with an authenticated session instead
// of estimating them. It reuses the identity set by WithSMTP.
func (v *Validator) WithOAuth(opts OAuthOptions) *Validator {
	mech, err := probe.ParseMechanism(string(opts.Mechanism))
	if opts.User == "" || err != nil {
		v.err = ErrInvalidOAuthOptions
		return v
	}
	opts.Mechanism = mech
	v.oauth = &opts
	v.strict = v.newOAuthClient(opts)
	return v
}

func (v *Validator) newOAuthClient(o OAuthOptions) *probe.OAuthClient {
	return probe.NewOAuth(v.probeCfg, o.User, o.Tokens, o.Mechanism)
}

// WithStrictProber probes strict domains with p. An outcome that comes
// back SKIPPED falls back to the estimate.
func (v *Validator) WithStrictProber(p probe.Prober) *Validator {
	v.strict = p
	return v
}

// WithReputation enables WHOIS enrichment after the MX step. It never
// changes status or score.
func (v *Validator) WithReputation(opts ReputationOptions) *Validator {
	cfg := check.ReputationConfig{
		Timeout:    opts.Timeout,
		CacheTTL:   opts.CacheTTL,
		MaxEntries: opts.CacheSize,
	}
	if opts.Query != nil {
		v.reputation = check.NewReputationCheckerWithQuery(cfg, opts.Query)
	} else {
		v.reputation = check.NewReputationChecker(cfg)
	}
	return v
}

// WithHostLimit paces probes to perSecond per MX host. perSecond <= 0
// disables pacing.
func (v *Validator) WithHostLimit(perSecond float64, burst int) *Validator {
	v.limiter = hostlimit.New(perSecond, burst)
	return v
}

// WithLogger sets the logger. A nil logger discards output.
func (v *Validator) WithLogger(l *zap.Logger) *Validator {
	if l == nil {
		l = zap.NewNop()
	}
	v.logger = l
	return v
}

// Err returns the first builder configuration error, if any.
func (v *Validator) Err() error {
	return v.err
}

// MXCacheLen reports the number of cached MX answers.
func (v *Validator) MXCacheLen() int {
	return v.mx.CacheLen()
}

// Validate runs the pipeline on one email. It stops at the first step
// that decides the verdict. The error is non-nil only for a builder
// configuration error; every other failure is described by the result.
func (v *Validator) Validate(ctx context.Context, email string, opts ...ValidateOptions) (ValidationResult, error) {
	if v.err != nil {
		return ValidationResult{}, v.err
	}
	var o ValidateOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	return v.validate(ctx, email, o), nil
}

func (v *Validator) validate(ctx context.Context, email string, o ValidateOptions) (res ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("validation aborted", zap.String("email", email), zap.Any("panic", r))
			res = internalError(email, fmt.Errorf("validation aborted: %v", r))
		}
	}()

	res = ValidationResult{Email: email, MX: []string{}}

	if !check.Syntax(email) {
		return rejected(res)
	}
	res.SyntaxValid = true
	addr := check.SplitAddress(email)

	if v.classifier.IsDisposable(addr.Domain) {
		res.Disposable = true
		return rejected(res)
	}
	res.RoleAccount = v.classifier.IsRoleAccount(addr.Local)
	res.Suggestion = v.typos.Suggest(addr.DomainUnicode)

	res.MX = v.mx.Resolve(ctx, addr.Domain)
	if len(res.MX) == 0 {
		return rejected(res)
	}

	if v.reputation != nil {
		res.Domain = v.reputation.Lookup(ctx, addr.Domain)
	}

	if o.SkipSMTP {
		return finish(res, types.StatusRisky, scoreSkipRequested)
	}

	rcpt := addr.Local + "@" + addr.Domain
	if v.classifier.RequiresSkip(addr.Domain) && !o.ForceSMTP {
		if v.strict == nil {
			return estimated(res, strictSkipReason)
		}
		out := v.probe(ctx, v.strict, res.MX[0], rcpt)
		if out.Skipped {
			return estimated(res, out.Message)
		}
		return probed(res, out)
	}

	return probed(res, v.probe(ctx, v.prober, res.MX[0], rcpt))
}

func (v *Validator) probe(ctx context.Context, p probe.Prober, host, rcpt string) types.SMTPOutcome {
	if err := v.limiter.Wait(ctx, host); err != nil {
		return types.SMTPOutcome{
			Code:    types.ReasonTimeout,
			Message: fmt.Sprintf("waiting for %s: %v", host, err),
			MXHost:  host,
		}
	}

	out := p.Probe(ctx, host, rcpt)
	v.logger.Debug("smtp probe",
		zap.String("mx", host),
		zap.Bool("ok", out.OK),
		zap.Bool("skipped", out.Skipped),
		zap.String("code", string(out.Code)),
		zap.Int("smtp_code", out.SMTPCode),
	)
	return out
}

// ValidateMany validates multiple emails concurrently.
// The result order matches the input slice order.
// Emails are sorted by domain internally so the MX cache is warm for
// neighbours.
func (v *Validator) ValidateMany(ctx context.Context, emails []string, opts ...ConcurrencyOptions) ([]ValidationResult, error) {
	if v.err != nil {
		return nil, v.err
	}

	var o ConcurrencyOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	workers := o.Workers
	if workers <= 0 {
		workers = 5
	}

	results := make([]ValidationResult, len(emails))
	type job struct {
		idx    int
		email  string
		domain string
	}

	jobSlice := make([]job, len(emails))
	for i, e := range emails {
		domain := ""
		if atIdx := strings.LastIndex(e, "@"); atIdx >= 0 {
			domain = strings.ToLower(e[atIdx+1:])
		}
		jobSlice[i] = job{idx: i, email: e, domain: domain}
	}
	sort.SliceStable(jobSlice, func(i, j int) bool {
		return jobSlice[i].domain < jobSlice[j].domain
	})

	bufSize := min(len(emails), 1000)
	jobs := make(chan job, bufSize)
	go func() {
		for _, j := range jobSlice {
			jobs <- j
		}
		close(jobs)
	}()

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.idx] = v.validate(ctx, j.email, o.Validate)
			}
		}()
	}

	wg.Wait()
	return results, nil
}
