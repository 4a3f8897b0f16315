package pbw

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/autopbw/internal/config"
	"github.com/wfunc/autopbw/internal/errors"
	"github.com/wfunc/autopbw/internal/logger"
	"github.com/wfunc/autopbw/internal/models"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL PBW站点地址
	DefaultBaseURL = "http://pbw.spaceempires.net/"

	// DefaultMaxFileSize 服务端未告知上限时使用64MiB
	DefaultMaxFileSize = 64 * 1024 * 1024

	defaultUserAgent = "AutoPBW/2.0"
)

// 上传表单字段
const (
	FieldHostTurn     = "turn_file"
	FieldPlayerTurn   = "plr_file"
	FieldPlayerEmpire = "emp_file"
)

// ModResolver 根据代码解析模组（未知代码自动登记）
type ModResolver interface {
	FindOrRegisterMod(code, defaultEngineCode string) (*models.Mod, bool)
}

// Client PBW服务客户端，通过cookie保持登录会话
type Client struct {
	baseURL       *url.URL
	http          *http.Client
	username      string
	password      string
	userAgent     string
	timeout       time.Duration
	uploadTimeout time.Duration
	mods          ModResolver
	log           *zap.Logger

	mu          sync.Mutex
	loggedIn    bool
	maxFileSize int64
	nextUpdate  time.Time
}

// NewClient 根据配置创建客户端
func NewClient(cfg config.PBWConfig, mods ModResolver) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigValidate, "invalid pbw.base_url %q", cfg.BaseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.IgnoreBadCertificates {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // 用户显式开启
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		baseURL: u,
		http: &http.Client{
			Jar:       jar,
			Transport: transport,
			// 不跟随重定向：主机回合上传以302表示成功，未登录时也会被重定向
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		username:      cfg.Username,
		password:      cfg.Password,
		userAgent:     userAgent,
		timeout:       cfg.Timeout,
		uploadTimeout: cfg.UploadTimeout,
		mods:          mods,
		log:           logger.WithModule("pbw"),
	}, nil
}

// URL 拼接站点内的相对路径
func (c *Client) URL(path string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/")}).String()
}

// GameURL 单局游戏下的操作地址，例如 games/{code}/host-turn/download
func (c *Client) GameURL(code, action string) string {
	return c.URL("games/" + url.PathEscape(code) + "/" + action)
}

// IsLoggedIn 当前会话是否已登录
func (c *Client) IsLoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// MaxFileSize 服务端允许的最大上传大小
func (c *Client) MaxFileSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxFileSize <= 0 {
		return DefaultMaxFileSize
	}
	return c.maxFileSize
}

// NextUpdate 服务端建议的下次轮询时间
func (c *Client) NextUpdate() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextUpdate
}

// SetCredentials 更新登录凭据，下次请求前重新登录
func (c *Client) SetCredentials(username, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.username != username || c.password != password {
		c.username = username
		c.password = password
		c.loggedIn = false
	}
}

// Login 提交登录表单，状态码小于400视为登录成功
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	username, password := c.username, c.password
	c.mu.Unlock()

	c.log.Info("登录PBW", zap.String("username", username), zap.String("password", redact(password)))

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	status, err := c.submitForm(ctx, c.URL("login/process"), form)
	c.mu.Lock()
	c.loggedIn = err == nil && status < http.StatusBadRequest
	c.mu.Unlock()

	if err != nil {
		return errors.Wrap(err, errors.ErrLoginFailed)
	}
	if status >= http.StatusBadRequest {
		return errors.Newf(errors.ErrLoginFailed, "login rejected with HTTP %d", status)
	}
	return nil
}

// EnsureLoggedIn 未登录时先登录
func (c *Client) EnsureLoggedIn(ctx context.Context) error {
	if c.IsLoggedIn() {
		return nil
	}
	return c.Login(ctx)
}

// FetchHostGames 获取本机主持的游戏列表
func (c *Client) FetchHostGames(ctx context.Context) ([]*models.HostGame, error) {
	var doc hostDocument
	if err := c.getXML(ctx, c.URL("node/host"), &doc); err != nil {
		return nil, err
	}
	c.updateLimits(doc.MaxFileSize, doc.UpdateInterval)

	var games []*models.HostGame
	add := func(list []gameElement, status models.HostStatus) {
		for _, gx := range list {
			g, err := c.hostGame(gx)
			if err != nil {
				c.log.Warn("跳过无法解析的主机游戏", zap.String("game", gx.GameCode), zap.Error(err))
				continue
			}
			g.Status = status
			games = append(games, g)
		}
	}
	add(doc.EmpiresReady, models.HostStatusEmpiresReady)
	add(doc.HostReady, models.HostStatusHostReady)
	add(doc.PlayersReady, models.HostStatusPlayersReady)
	return games, nil
}

// FetchPlayerGames 获取本机参与的游戏列表
func (c *Client) FetchPlayerGames(ctx context.Context) ([]*models.PlayerGame, error) {
	var doc playerDocument
	if err := c.getXML(ctx, c.URL("node/player"), &doc); err != nil {
		return nil, err
	}
	c.updateLimits(doc.MaxFileSize, doc.UpdateInterval)

	games := make([]*models.PlayerGame, 0, len(doc.Games))
	for _, gx := range doc.Games {
		g, err := c.playerGame(gx)
		if err != nil {
			c.log.Warn("跳过无法解析的玩家游戏", zap.String("game", gx.GameCode), zap.Error(err))
			continue
		}
		games = append(games, g)
	}
	return games, nil
}

// Download 下载文件保存到dest
func (c *Client) Download(ctx context.Context, rawURL, dest string) error {
	ctx, cancel := c.withTimeout(ctx, c.timeout)
	defer cancel()

	c.log.Info("开始下载", zap.String("url", rawURL), zap.String("dest", dest))
	resp, err := c.do(ctx, http.MethodGet, rawURL, nil, "")
	if err != nil {
		return errors.Wrap(err, errors.ErrDownloadFailed, "download "+rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.checkSession(resp.StatusCode)
		return errors.Newf(errors.ErrDownloadFailed, "download %s: HTTP %d", rawURL, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.Wrap(err, errors.ErrDownloadFailed)
	}
	f, err := os.Create(dest)
	if err != nil {
		return errors.Wrap(err, errors.ErrDownloadFailed)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return errors.Wrap(err, errors.ErrDownloadFailed, "download "+rawURL)
	}
	return f.Close()
}

// Upload 以multipart表单上传文件
//
// 返回expectedStatus为成功；期望其他状态却收到200时记录警告并视为成功。
func (c *Client) Upload(ctx context.Context, file, rawURL, field string, expectedStatus int) error {
	ctx, cancel := c.withTimeout(ctx, c.uploadTimeout)
	defer cancel()

	filename := filepath.Base(file)
	c.log.Info("开始上传",
		zap.String("file", file),
		zap.String("url", rawURL),
		zap.String("field", field),
	)

	body, contentType, err := c.multipartBody(file, field)
	if err != nil {
		return errors.Wrap(err, errors.ErrUploadFailed, "read "+file)
	}

	resp, err := c.do(ctx, http.MethodPost, rawURL, body, contentType)
	if err != nil {
		return errors.Wrap(err, errors.ErrUploadFailed, "upload "+filename)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == expectedStatus {
		return nil
	}
	if resp.StatusCode == http.StatusOK {
		c.log.Warn("上传返回状态与预期不符",
			zap.String("file", filename),
			zap.Int("expected", expectedStatus),
			zap.Int("status", resp.StatusCode),
		)
		return nil
	}
	c.checkSession(resp.StatusCode)
	return errors.Newf(errors.ErrUploadFailed,
		"Could not upload %s to PBW, response %s. Try uploading it manually to see if there is an error.",
		filename, resp.Status)
}

// PlaceHold 暂停服务端对该游戏的自动处理
func (c *Client) PlaceHold(ctx context.Context, game *models.HostGame, reason string) error {
	c.log.Info("设置处理暂停", zap.String("game", game.Code), zap.String("reason", reason))
	form := url.Values{}
	form.Set("hold_message", reason)
	if err := c.postAction(ctx, c.GameURL(game.Code, "hold-turn"), form); err != nil {
		return errors.Wrapf(err, errors.ErrHoldFailed, "place hold on %s", game.Code)
	}
	return nil
}

// ClearHold 取消处理暂停
func (c *Client) ClearHold(ctx context.Context, game *models.HostGame) error {
	c.log.Info("取消处理暂停", zap.String("game", game.Code))
	if err := c.postAction(ctx, c.GameURL(game.Code, "clear-hold"), url.Values{}); err != nil {
		return errors.Wrapf(err, errors.ErrHoldFailed, "clear hold on %s", game.Code)
	}
	return nil
}

func (c *Client) postAction(ctx context.Context, rawURL string, form url.Values) error {
	status, err := c.submitForm(ctx, rawURL, form)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		c.checkSession(status)
		return errors.Newf(errors.ErrUnexpectedStatus, "HTTP %d from %s", status, rawURL)
	}
	return nil
}

func (c *Client) submitForm(ctx context.Context, rawURL string, form url.Values) (int, error) {
	ctx, cancel := c.withTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) getXML(ctx context.Context, rawURL string, v interface{}) error {
	ctx, cancel := c.withTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, rawURL, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.checkSession(resp.StatusCode)
		return errors.Newf(errors.ErrConnectivity, "GET %s: HTTP %d", rawURL, resp.StatusCode)
	}
	if err := xml.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrapf(err, errors.ErrMessageFormat, "parse %s", rawURL)
	}
	return nil
}

// do 发送请求，网络层错误统一归为连接失败
func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidParam)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.LogHTTPCall(method, rawURL, 0, time.Since(start), err)
		return nil, errors.Wrap(err, errors.ErrConnectivity)
	}
	logger.LogHTTPCall(method, rawURL, resp.StatusCode, time.Since(start), nil)
	return resp, nil
}

func (c *Client) multipartBody(file, field string) (*bytes.Buffer, string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if err := w.WriteField("MAX_FILE_SIZE", strconv.FormatInt(c.MaxFileSize(), 10)); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("fileformat", field); err != nil {
		return nil, "", err
	}
	part, err := w.CreateFormFile(field, filepath.Base(file))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// checkSession 被重定向或拒绝访问时认为会话已失效
func (c *Client) checkSession(status int) {
	if status == http.StatusUnauthorized || status == http.StatusForbidden ||
		(status >= 300 && status < 400) {
		c.mu.Lock()
		c.loggedIn = false
		c.mu.Unlock()
	}
}

func (c *Client) updateLimits(maxFileSize, updateInterval string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, err := strconv.ParseInt(strings.TrimSpace(maxFileSize), 10, 64); err == nil && n > 0 {
		c.maxFileSize = n
	}
	if secs, err := strconv.ParseFloat(strings.TrimSpace(updateInterval), 64); err == nil && secs > 0 {
		c.nextUpdate = time.Now().Add(time.Duration(secs * float64(time.Second)))
	}
}

func (c *Client) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (c *Client) resolveMod(modCode, engineCode string) *models.Mod {
	if c.mods == nil {
		return nil
	}
	m, _ := c.mods.FindOrRegisterMod(modCode, engineCode)
	return m
}

func (c *Client) hostGame(gx gameElement) (*models.HostGame, error) {
	base, err := c.baseGame(gx, gx.GamePassword)
	if err != nil {
		return nil, err
	}
	return &models.HostGame{Game: *base}, nil
}

func (c *Client) playerGame(gx gameElement) (*models.PlayerGame, error) {
	base, err := c.baseGame(gx, gx.EmpirePassword)
	if err != nil {
		return nil, err
	}
	if base.TurnStartDate, err = models.ParseUnixTime(gx.TurnStartDate); err != nil {
		return nil, err
	}
	status, err := models.ParsePlayerStatus(gx.PlrStatus)
	if err != nil {
		return nil, err
	}
	number, err := strconv.Atoi(strings.TrimSpace(gx.Number))
	if err != nil {
		return nil, fmt.Errorf("invalid player number %q", gx.Number)
	}
	return &models.PlayerGame{
		Game:         *base,
		Status:       status,
		PlayerNumber: number,
		ShipsetCode:  strings.TrimSpace(gx.ShipsetCode),
	}, nil
}

func (c *Client) baseGame(gx gameElement, password string) (*models.Game, error) {
	code := strings.TrimSpace(gx.GameCode)
	if code == "" {
		return nil, fmt.Errorf("missing game_code")
	}
	mode, err := models.ParseTurnMode(gx.TurnMode)
	if err != nil {
		return nil, err
	}
	turn, err := strconv.Atoi(strings.TrimSpace(gx.Turn))
	if err != nil {
		return nil, fmt.Errorf("invalid turn %q", gx.Turn)
	}
	due, err := models.ParseUnixTime(gx.NextTurnDate)
	if err != nil {
		return nil, err
	}
	return &models.Game{
		Code:        code,
		Password:    password,
		Mod:         c.resolveMod(strings.TrimSpace(gx.ModCode), strings.TrimSpace(gx.GameType)),
		TurnMode:    mode,
		TurnNumber:  turn,
		TurnDueDate: due,
	}, nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return strings.Repeat("*", len(s))
}
