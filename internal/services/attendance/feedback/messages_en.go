package feedback

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, keyAccepted, defaultAccepted)
	message.SetString(lang, keyAcceptedNamed, "Attendance marked for %s in %s.")
	message.SetString(lang, keyExpired, defaultExpired)
	message.SetString(lang, keyOutOfRange, "You must be within %.0fm of %s. You are %.0fm away.")
	message.SetString(lang, keyDuplicate, "Your attendance is already marked for this session.")
	message.SetString(lang, keyInvalidToken, "This QR code is not valid. Please scan the code shown by your instructor.")
	message.SetString(lang, keyInvalidRequest, "The scan could not be read. Please try again.")
	message.SetString(lang, keyFailed, defaultFailed)
}
