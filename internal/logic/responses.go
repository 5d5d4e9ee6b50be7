package logic

// Response is a downstream emergency response run when a session fires.
type Response string

const (
	ResponseSendLocation   Response = "SEND_LOCATION"
	ResponseSendSMS        Response = "SEND_SMS"
	ResponseCallContacts   Response = "CALL_CONTACTS"
	ResponseLiveTracking   Response = "LIVE_TRACKING"
	ResponseRecordAudio    Response = "RECORD_AUDIO"
	ResponseBroadcastAlert Response = "BROADCAST_ALERT"
)

var levelResponses = [MaxLevel + 1][]Response{
	1: {ResponseSendLocation, ResponseSendSMS},
	2: {ResponseCallContacts, ResponseLiveTracking},
	3: {ResponseRecordAudio, ResponseBroadcastAlert},
}

// ResponsesForLevel returns the cumulative responses for a level. Levels
// outside MinLevel..MaxLevel are clamped.
func ResponsesForLevel(level int) []Response {
	if level < MinLevel {
		level = MinLevel
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	var out []Response
	for l := MinLevel; l <= level; l++ {
		out = append(out, levelResponses[l]...)
	}
	return out
}
