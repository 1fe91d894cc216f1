package weaiove

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Session binds a Client to one member token.
type Session struct {
	c       *Client
	headers http.Header
	log     *zap.Logger
}

// Session returns a per-account view; label only decorates log lines.
func (c *Client) Session(token, label string) *Session {
	return &Session{
		c:       c,
		headers: c.Headers(token),
		log:     c.log.With(zap.String("account", label)),
	}
}

func (s *Session) call(ctx context.Context, action, method, path string, body any) Result {
	return s.c.request(ctx, s.log, action, method, path, s.headers, body)
}

type Member struct {
	ID     string
	Mobile string
}

// Member resolves the internal member id and the bound phone number.
func (s *Session) Member(ctx context.Context) (Member, Result) {
	res := s.call(ctx, "member", http.MethodGet, "/member/getAppById", nil)
	if !res.OK() {
		return Member{}, res
	}
	var data struct {
		MemberID     string `json:"memberId"`
		MemberMobile string `json:"memberMobile"`
	}
	if err := res.Decode(&data); err != nil {
		return Member{}, malformed(res, "decode member: %v", err)
	}
	if data.MemberID == "" {
		return Member{}, malformed(res, "no memberId in response")
	}
	return Member{ID: data.MemberID, Mobile: data.MemberMobile}, res
}

type memberPayload struct {
	Channel  int    `json:"channel"`
	MemberID string `json:"memberId"`
	PlazaID  string `json:"plazaId"`
}

func (s *Session) SignIn(ctx context.Context, memberID string) Result {
	return s.call(ctx, "sign_in", http.MethodPost, "/sign/clientSignIn",
		memberPayload{Channel: 2, MemberID: memberID, PlazaID: PlazaID})
}

// SignCount returns the accumulated check-in days.
func (s *Session) SignCount(ctx context.Context, memberID string) (int, Result) {
	res := s.call(ctx, "sign_count", http.MethodPost, "/sign/appSignCount",
		memberPayload{Channel: 2, MemberID: memberID, PlazaID: PlazaID})
	if !res.OK() {
		return 0, res
	}
	var n float64
	if err := res.Decode(&n); err != nil {
		return 0, malformed(res, "decode sign count: %v", err)
	}
	return int(n), res
}

type Profile struct {
	Level           string  `json:"memberLevelName"`
	NextLevelGrowth float64 `json:"DGrowupValue"`
	GrowthToNext    float64 `json:"accDifference"`
	Growth          float64 `json:"accGrowupAmt"`
	Points          float64 `json:"acctRewardpointsAmt"`
}

func (s *Session) Profile(ctx context.Context, memberID string) (Profile, Result) {
	res := s.call(ctx, "profile", http.MethodGet, "/member/getByMemberLevelDetailApp/"+url.PathEscape(memberID), nil)
	if !res.OK() {
		return Profile{}, res
	}
	var p Profile
	if err := res.Decode(&p); err != nil {
		return Profile{}, malformed(res, "decode profile: %v", err)
	}
	if p.Level == "" {
		p.Level = "unknown"
	}
	return p, res
}

// CampaignGameID extracts the member-day game id from the first home banner's jump url.
func (s *Session) CampaignGameID(ctx context.Context) (string, Result) {
	res := s.call(ctx, "campaign", http.MethodGet, "/advertising/getUpList/HOP01", nil)
	if !res.OK() {
		return "", res
	}
	var ads []struct {
		JumpURL string `json:"jumpUrl"`
	}
	if err := res.Decode(&ads); err != nil {
		return "", malformed(res, "decode campaign list: %v", err)
	}
	if len(ads) == 0 {
		return "", malformed(res, "campaign list is empty")
	}
	id := GameIDFromJumpURL(ads[0].JumpURL)
	if id == "" {
		return "", malformed(res, "no gameId in jumpUrl %q", ads[0].JumpURL)
	}
	return id, res
}

// GameIDFromJumpURL returns the gameId query parameter of a mini-program
// jump url such as "/pages/game/index?gameId=123&x=1".
func GameIDFromJumpURL(jump string) string {
	_, query, ok := strings.Cut(jump, "?")
	if !ok {
		return ""
	}
	v, err := url.ParseQuery(query)
	if err != nil {
		return ""
	}
	return v.Get("gameId")
}

// Share records a share action, which unlocks one free draw.
func (s *Session) Share(ctx context.Context, memberID, gameID string) Result {
	payload := struct {
		AppPageCode string `json:"appPageCode"`
		MemberID    string `json:"memberId"`
		SharedByID  string `json:"sharedById"`
		SharedType  int    `json:"sharedType"`
		GameID      string `json:"gameId"`
		PlazaID     string `json:"plazaId"`
	}{"GAD03", memberID, "", 2, gameID, PlazaID}
	return s.call(ctx, "share", http.MethodPost, "/shareRecords/save", payload)
}

// Remaining returns the vendor's count of free draws left. The number can be stale.
func (s *Session) Remaining(ctx context.Context, gameID string) (int, Result) {
	res := s.call(ctx, "remaining", http.MethodGet, "/game/residue/"+url.PathEscape(gameID), nil)
	if !res.OK() {
		return 0, res
	}
	var n float64
	if err := res.Decode(&n); err != nil {
		return 0, malformed(res, "decode remaining chances: %v", err)
	}
	return int(n), res
}

// CheckPointsDraw asks whether points can be redeemed for another draw.
func (s *Session) CheckPointsDraw(ctx context.Context, gameID string) Result {
	return s.call(ctx, "points_exchange", http.MethodGet, "/game/getIntegralGame/"+url.PathEscape(gameID), nil)
}

// Draw performs one draw and returns the prize text.
func (s *Session) Draw(ctx context.Context, gameID string) (string, Result) {
	res := s.call(ctx, "draw", http.MethodGet, "/game/getById/"+url.PathEscape(gameID)+"/0", nil)
	if !res.OK() {
		return "", res
	}
	var data struct {
		Message string `json:"message"`
	}
	if err := res.Decode(&data); err != nil {
		return "", malformed(res, "decode draw result: %v", err)
	}
	if data.Message == "" {
		data.Message = "draw succeeded, prize unknown"
	}
	return data.Message, res
}

// UnusedCoupons lists the names on the first page of unused coupons.
func (s *Session) UnusedCoupons(ctx context.Context, memberID string) ([]string, Result) {
	payload := struct {
		PageSize     int    `json:"pageSize"`
		PageNumber   int    `json:"pageNumber"`
		TotalPages   string `json:"totalPages"`
		MemberID     string `json:"memberId"`
		BusinessType string `json:"businessType"`
		Status       int    `json:"status"`
	}{20, 1, "", memberID, "", 1}
	res := s.call(ctx, "coupons", http.MethodPost, "/member/getCopuonsPageList", payload)
	if !res.OK() {
		return nil, res
	}
	var data struct {
		Items []struct {
			Name string `json:"couponsName"`
		} `json:"items"`
	}
	if err := res.Decode(&data); err != nil {
		return nil, malformed(res, "decode coupons: %v", err)
	}
	names := make([]string, 0, len(data.Items))
	for _, it := range data.Items {
		if it.Name != "" {
			names = append(names, it.Name)
		}
	}
	return names, res
}
