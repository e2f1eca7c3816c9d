package broadcast

import (
	"fmt"
	"time"

	"baubot/pkg/tgui"
)

func claimedNotice(option string) string {
	return tgui.Pass(tgui.Code(option)).String()
}

func timeoutNotice(d time.Duration) string {
	return tgui.TimedOut(tgui.Raw(fmt.Sprintf("Timeout (%dms) exceeded", d.Milliseconds()))).String()
}

var orphanedNotice = tgui.TimedOut("The recipient probably timed out 😭").String()
