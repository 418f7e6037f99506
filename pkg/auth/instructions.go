package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteCredentialGuide explains how to copy the session cookie and token
// out of a logged-in mp.weixin.qq.com browser tab
func WriteCredentialGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "获取公众号平台凭据 / Getting mp.weixin.qq.com credentials")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "wxexport reads the article list through the Official Account admin")
	fmt.Fprintln(w, "console, so it needs the cookie and token of a logged-in session.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. Log in at https://mp.weixin.qq.com by scanning the QR code.")
	fmt.Fprintln(w, "2. After login the address bar contains token=NNNNNNNNN. Copy that number.")
	fmt.Fprintln(w, "3. Open Developer Tools (F12), Network tab, and reload the page.")
	fmt.Fprintln(w, "4. Click any request to mp.weixin.qq.com and open Request Headers.")
	fmt.Fprintln(w, "5. Copy the whole value of the Cookie: header (slave_sid, data_ticket, ...).")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Then run:")
	fmt.Fprintln(w, "  wxexport auth set <profile>")
	fmt.Fprintln(w, "or export WXEXPORT_COOKIE and WXEXPORT_TOKEN.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The session expires after a few hours of inactivity. Ret code 200003")
	fmt.Fprintln(w, "(invalid session) means it is time to copy fresh values.")
	fmt.Fprintln(w, rule)
}
