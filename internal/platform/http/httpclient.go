// Package http は外部呼び出し用のHTTPクライアントを提供します。
package http

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

// ErrPrivateAddress is returned when a public client is asked to connect to a
// loopback, private, link-local or otherwise non-public address.
var ErrPrivateAddress = errors.New("refusing to connect to non-public address")

// sharedAddressSpace is the carrier-grade NAT range (RFC 6598), which netip does not treat as private.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// NewHTTPClient は姿勢推定モデルサーバーや画像URLの取得に使うHTTPクライアントを作成します。
//
// 設定:
//   - Proxy: 環境変数（HTTP_PROXYなど）が設定されている場合に使用
//   - Dialer.Timeout: TCP接続タイムアウト（デフォルトより短い）
//   - MaxIdleConnsPerHost: モデルサーバーへの連続リクエストで接続を使い回すため多めに確保
//   - ResponseHeaderTimeout: 推論は時間がかかるため Client.Timeout と同じ値
//   - Client.Timeout: リクエスト全体のタイムアウト（呼び出し元から渡される）
//
// 注意:
//   - http.DefaultClientにはタイムアウトがないため、常にカスタムクライアントを使用すること
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: newTransport(timeout, nil)}
}

// NewPublicHTTPClient は信頼できない呼び出し元が指定したURLの取得に使うHTTPクライアントを作成します。
// 接続先IPが公開アドレスでなければダイヤル時に ErrPrivateAddress で拒否します。
// リダイレクト先やDNSの再解決にも同じ検査が掛かります。
// プロキシ経由では接続先を検査できないため、プロキシは使用しません。
func NewPublicHTTPClient(timeout time.Duration) *http.Client {
	t := newTransport(timeout, rejectNonPublic)
	t.Proxy = nil
	return &http.Client{Timeout: timeout, Transport: t}
}

func newTransport(timeout time.Duration, control func(network, address string, c syscall.RawConn) error) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
			Control:   control,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
}

// rejectNonPublic runs after DNS resolution, so address is always ip:port.
func rejectNonPublic(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, address)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil || !IsPublicAddr(ip) {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, host)
	}
	return nil
}

// IsPublicAddr reports whether ip is a globally routable unicast address.
func IsPublicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	if !ip.IsGlobalUnicast() || ip.IsPrivate() {
		return false
	}
	return !sharedAddressSpace.Contains(ip)
}
