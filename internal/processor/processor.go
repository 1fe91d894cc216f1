// Package processor runs the per-account call sequence and renders its report.
package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/aove-scheduler/internal/account"
	"github.com/example/aove-scheduler/internal/clock"
	"github.com/example/aove-scheduler/internal/draw"
	"github.com/example/aove-scheduler/internal/notify"
	"github.com/example/aove-scheduler/internal/weaiove"
)

type Mode string

const (
	ModeDaily   Mode = "daily"   // check-in, profile, member-day draws, coupons
	ModeCoupons Mode = "coupons" // coupon lookup with a push per account holding coupons
	ModePoints  Mode = "points"  // one points line per account
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeDaily, ModeCoupons, ModePoints:
		return m, nil
	case "":
		return ModeDaily, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want daily, coupons or points)", s)
	}
}

// Report is the rendered outcome of one account. Lines are immutable once
// Process returns.
type Report struct {
	Index int
	Label string
	// Failed is set when identity lookup failed and no further step ran.
	Failed bool
	Lines  []string
}

func (r Report) String() string { return strings.Join(r.Lines, "\n") }

type Processor struct {
	Client *weaiove.Client
	// Alerts receives out-of-band messages: invalid tokens, prizes, coupons.
	Alerts      notify.Notifier
	Mode        Mode
	Now         func() time.Time
	Location    *time.Location
	DrawWeekday time.Weekday
	Sleep       clock.SleepFunc
	Log         *zap.Logger
}

func (p *Processor) now() time.Time {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	if p.Location != nil {
		return now().In(p.Location)
	}
	return now()
}

func (p *Processor) alert(ctx context.Context, msg notify.Message) {
	if p.Alerts == nil {
		return
	}
	if err := p.Alerts.Notify(ctx, msg); err != nil {
		p.Log.Warn("alert not delivered", zap.String("title", msg.Title), zap.Error(err))
	}
}

// Process runs every step for acct. Only a failed identity lookup stops the
// sequence; later steps degrade to an "unavailable" line on their own.
func (p *Processor) Process(ctx context.Context, index int, acct account.Account) Report {
	if p.Log == nil {
		p.Log = zap.NewNop()
	}
	name := fmt.Sprintf("Account %d (%s)", index, acct.Label)
	rep := Report{Index: index, Label: acct.Label}
	sess := p.Client.Session(acct.Token, acct.Label)
	now := p.now()

	if p.Mode == ModePoints {
		return p.points(ctx, sess, rep, name, acct)
	}

	header := "👤 " + name
	rep.Lines = append(rep.Lines, header, "🕕 Processed at: "+now.Format("2006-01-02 15:04:05"))

	member, res := sess.Member(ctx)
	if !res.OK() {
		rep.Failed = true
		rep.Lines = append(rep.Lines, "❌ Error: member lookup failed ("+res.Reason()+")")
		if weaiove.SuggestsBadToken(res) {
			p.alert(ctx, notify.Message{
				Title:    "⚠️ " + name + " token may be invalid",
				Subtitle: "Error: " + res.Reason(),
				Body:     "Check the account entry or capture a new token: " + acct.Raw,
			})
		}
		return rep
	}
	rep.Lines[0] = header + " (mobile: " + maskMobile(member.Mobile) + ")"

	if p.Mode == ModeCoupons {
		rep.Lines = append(rep.Lines, p.coupons(ctx, sess, member.ID, name, acct, true)...)
		return rep
	}

	rep.Lines = append(rep.Lines, "📌 Check-in: "+checkIn(sess.SignIn(ctx, member.ID)))

	if n, res := sess.SignCount(ctx, member.ID); res.OK() {
		rep.Lines = append(rep.Lines, fmt.Sprintf("📅 Checked in %d days", n))
	} else {
		rep.Lines = append(rep.Lines, "📅 Check-in days: unavailable")
	}

	if prof, res := sess.Profile(ctx, member.ID); res.OK() {
		rep.Lines = append(rep.Lines,
			"⭐ Level: "+prof.Level,
			"💰 Points: "+num(prof.Points),
			fmt.Sprintf("📈 Growth: %s (%s to next level)", num(prof.Growth), num(prof.GrowthToNext)),
		)
	} else {
		rep.Lines = append(rep.Lines, "⚠️ Profile: unavailable")
	}

	if now.Weekday() == p.DrawWeekday {
		rep.Lines = append(rep.Lines, p.memberDay(ctx, sess, member.ID, name)...)
	}

	rep.Lines = append(rep.Lines, p.coupons(ctx, sess, member.ID, name, acct, false)...)
	return rep
}

func checkIn(res weaiove.Result) string {
	switch {
	case res.OK():
		return "checked in"
	case res.Condition() == weaiove.CondAlreadySignedIn:
		return "already checked in today"
	default:
		return "failed (" + res.Reason() + ")"
	}
}

func (p *Processor) memberDay(ctx context.Context, sess *weaiove.Session, memberID, name string) []string {
	lines := []string{"", "--- Member day draws ---"}
	gameID, res := sess.CampaignGameID(ctx)
	if !res.OK() {
		return append(lines, "❌ Campaign unavailable ("+res.Reason()+")", "------------------------")
	}

	eng := &draw.Engine{
		API:   sess,
		Sleep: p.Sleep,
		Log:   p.Log,
		OnWin: func(ctx context.Context, pool draw.Pool, prize string) {
			p.alert(ctx, notify.Message{
				Title:    "🎉 " + name + " won a prize",
				Subtitle: pool.String() + " draw",
				Body:     prize,
				Options:  notify.Options{Level: "timeSensitive"},
			})
		},
	}

	for _, run := range []struct {
		pool  draw.Pool
		max   int
		title string
	}{
		{draw.PoolFree, draw.MaxFreeDraws, "🎁 Free draws"},
		{draw.PoolPoints, draw.MaxPointsDraws, "💎 Points draws"},
	} {
		outcomes := eng.Run(ctx, run.pool, gameID, memberID, run.max)
		if len(outcomes) == 0 {
			lines = append(lines, run.title+": no chances")
			continue
		}
		lines = append(lines, run.title+":")
		for i, o := range outcomes {
			lines = append(lines, fmt.Sprintf("  %d. %s", i+1, o))
		}
	}
	return append(lines, "------------------------")
}

func (p *Processor) coupons(ctx context.Context, sess *weaiove.Session, memberID, name string, acct account.Account, push bool) []string {
	names, res := sess.UnusedCoupons(ctx, memberID)
	if !res.OK() {
		return []string{"🎟️ Coupons: unavailable (" + res.Reason() + ")"}
	}
	if len(names) == 0 {
		return []string{"🎟️ Coupons: none found"}
	}
	if push {
		p.alert(ctx, notify.Message{
			Title:    "✅ " + name + " has unused coupons",
			Subtitle: fmt.Sprintf("%d coupon(s)", len(names)),
			Body:     fmt.Sprintf("Unused coupons:\n%s\n\nToken:\n%s", strings.Join(names, "\n"), acct.Token),
			Options:  notify.Options{Group: "weaiove-coupons", Copy: acct.Token},
		})
	}
	lines := []string{"", "--- 🎟️ Unused coupons ---"}
	for _, n := range names {
		lines = append(lines, "- "+n)
	}
	return append(lines, "------------------------")
}

// points renders the compact single-line form used by ModePoints.
func (p *Processor) points(ctx context.Context, sess *weaiove.Session, rep Report, name string, acct account.Account) Report {
	member, res := sess.Member(ctx)
	if !res.OK() {
		rep.Failed = true
		rep.Lines = []string{"【" + acct.Label + "】❌ " + acct.Masked() + " | lookup failed: " + res.Reason()}
		return rep
	}
	prof, res := sess.Profile(ctx, member.ID)
	if !res.OK() {
		rep.Lines = []string{"【" + acct.Label + "】❌ " + acct.Masked() + " | points unavailable: " + res.Reason()}
		return rep
	}
	p.Log.Debug("points", zap.String("account", name), zap.Float64("points", prof.Points))
	rep.Lines = []string{"【" + acct.Label + "】✅ " + acct.Masked() + " | points: " + num(prof.Points)}
	return rep
}

func num(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.2f", f)
}

// maskMobile hides the middle digits of a phone number.
func maskMobile(m string) string {
	if len(m) < 7 {
		if m == "" {
			return "unknown"
		}
		return m
	}
	return m[:3] + strings.Repeat("*", len(m)-7) + m[len(m)-4:]
}
