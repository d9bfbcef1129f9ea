package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/betareaderbr/betareader/models"
)

// RegisterRequest creates a reader account.
type RegisterRequest struct {
	FullName     string     `json:"full_name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	Password     string     `json:"password"`
	ReferralCode string     `json:"referral_code,omitempty"`
	UTM          models.UTM `json:"utm"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token string          `json:"token"`
	User  models.UserData `json:"user"`
}

// CompleteBookRequest carries the rating and the quiz answers.
type CompleteBookRequest struct {
	Rating  int   `json:"rating"`
	Answers []int `json:"answers"`
}

// WithdrawRequest asks for a PIX payout.
type WithdrawRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	PixKey     string          `json:"pix_key"`
	PixKeyType string          `json:"pix_key_type"`
}

// Question is a quiz question as served to readers, without the answer.
type Question struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Book is a catalog entry.
type Book struct {
	Slug       string          `json:"slug"`
	Title      string          `json:"title"`
	Author     string          `json:"author"`
	Excerpt    string          `json:"excerpt"`
	Reward     decimal.Decimal `json:"reward"`
	Difficulty string          `json:"difficulty"`
	Category   string          `json:"category"`
	Premium    bool            `json:"premium"`
	Questions  []Question      `json:"questions,omitempty"`
}

// Pagination mirrors the server's pagination block.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// BookPage is one page of the catalog.
type BookPage struct {
	Items      []Book     `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// BookFilter narrows ListBooks.
type BookFilter struct {
	Category   string
	Difficulty string
	Page       int
	PageSize   int
}

// FriendUser is the public view of a friend.
type FriendUser struct {
	ID             uint   `json:"id"`
	FullName       string `json:"full_name"`
	BooksCompleted int64  `json:"books_completed"`
}

// Friend is one friendship seen from the caller's side.
type Friend struct {
	ID        uint       `json:"id"`
	Status    string     `json:"status"`
	Direction string     `json:"direction"`
	Friend    FriendUser `json:"friend"`
}

// FriendRequest targets another reader by e-mail or referral code.
type FriendRequest struct {
	Email        string `json:"email,omitempty"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// TrackRequest is a marketing event forwarded to the server-side pixel.
type TrackRequest struct {
	EventName     string          `json:"event_name,omitempty"`
	Path          string          `json:"path,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	Email         string          `json:"email,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	Plan          string          `json:"plan,omitempty"`
	Value         decimal.Decimal `json:"value"`
	Currency      string          `json:"currency,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	OrderID       string          `json:"order_id,omitempty"`
	PixCode       string          `json:"pix_code,omitempty"`
	ContentID     string          `json:"content_id,omitempty"`
	ContentName   string          `json:"content_name,omitempty"`
	SourceURL     string          `json:"source_url,omitempty"`
	Data          map[string]any  `json:"data,omitempty"`
}

// Register creates an account and adopts the returned session credential.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &out, nil); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	c.SetIdentity(out.User.Email)
	return &out, nil
}

// Login authenticates and adopts the returned session credential.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	in := map[string]string{"email": email, "password": password}
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", in, &out, nil); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	c.SetIdentity(out.User.Email)
	return &out, nil
}

// Logout revokes the current credential.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

// GetUserData fetches the caller's snapshot. A missing record matches ErrNotFound.
func (c *Client) GetUserData(ctx context.Context) (*models.UserData, error) {
	var out models.UserData
	if err := c.do(ctx, http.MethodGet, "/api/users/me/data", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateUserData upserts the full snapshot. A positive expectVersion is sent as
// If-Match and a stale write matches ErrConflict.
func (c *Client) UpdateUserData(ctx context.Context, data models.UserData, expectVersion int64) (*models.UserData, error) {
	var out models.UserData
	if err := c.do(ctx, http.MethodPut, "/api/users/me/data", data, &out, versionHeader(expectVersion)); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteBook records a completion server-side. A repeat completion matches ErrConflict.
func (c *Client) CompleteBook(ctx context.Context, slug string, req CompleteBookRequest) (*models.UserData, error) {
	var out models.UserData
	if err := c.do(ctx, http.MethodPost, "/api/books/"+url.PathEscape(slug)+"/complete", req, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUserStats returns statistics recomputed by the server.
func (c *Client) GetUserStats(ctx context.Context) (*models.Statistics, error) {
	var out models.Statistics
	if err := c.do(ctx, http.MethodGet, "/api/users/me/stats", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// SelectPlan changes the caller's plan.
func (c *Client) SelectPlan(ctx context.Context, plan models.Plan) (*models.UserData, error) {
	var out models.UserData
	if err := c.do(ctx, http.MethodPatch, "/api/users/me/plan", map[string]string{"plan": string(plan)}, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMonthlyGoal changes the caller's monthly earnings goal.
func (c *Client) UpdateMonthlyGoal(ctx context.Context, goal decimal.Decimal) (*models.UserData, error) {
	var out models.UserData
	in := map[string]decimal.Decimal{"monthly_goal": goal}
	if err := c.do(ctx, http.MethodPatch, "/api/users/me/goal", in, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Withdraw requests a payout of part of the balance.
func (c *Client) Withdraw(ctx context.Context, req WithdrawRequest) (*models.UserData, error) {
	var out models.UserData
	if err := c.do(ctx, http.MethodPost, "/api/users/me/withdraw", req, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBooks returns one catalog page.
func (c *Client) ListBooks(ctx context.Context, f BookFilter) (*BookPage, error) {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Difficulty != "" {
		q.Set("difficulty", f.Difficulty)
	}
	var out BookPage
	if err := c.do(ctx, http.MethodGet, "/api/books"+pageQuery(q, f.Page, f.PageSize), nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBook returns one book with its quiz.
func (c *Client) GetBook(ctx context.Context, slug string) (*Book, error) {
	var out Book
	if err := c.do(ctx, http.MethodGet, "/api/books/"+url.PathEscape(slug), nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFriends returns pending and accepted friendships of the caller.
func (c *Client) ListFriends(ctx context.Context) ([]Friend, error) {
	var out struct {
		Items []Friend `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/friendships", nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// SendFriendRequest invites another reader.
func (c *Client) SendFriendRequest(ctx context.Context, req FriendRequest) (*Friend, error) {
	var out Friend
	if err := c.do(ctx, http.MethodPost, "/api/friendships", req, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// AcceptFriendRequest accepts an incoming invitation.
func (c *Client) AcceptFriendRequest(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodPost, "/api/friendships/"+strconv.FormatUint(uint64(id), 10)+"/accept", nil, nil, nil)
}

// RemoveFriend deletes a friendship or declines an invitation.
func (c *Client) RemoveFriend(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, "/api/friendships/"+strconv.FormatUint(uint64(id), 10), nil, nil, nil)
}

// Track forwards a marketing event. It reports whether the server sent it
// or dropped it as a duplicate.
func (c *Client) Track(ctx context.Context, event string, req TrackRequest) (bool, error) {
	var out struct {
		Sent bool `json:"sent"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/track/"+url.PathEscape(event), req, &out, nil); err != nil {
		return false, err
	}
	return out.Sent, nil
}
