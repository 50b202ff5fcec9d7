package feedback

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.MustParse("pt-BR")

	message.SetString(lang, keyAccepted, "Presença registrada com sucesso!")
	message.SetString(lang, keyAcceptedNamed, "Presença registrada para %s em %s.")
	message.SetString(lang, keyExpired, "O QR code expirou. Peça um novo código ao professor.")
	message.SetString(lang, keyOutOfRange, "Você precisa estar a até %.0fm de %s. Você está a %.0fm.")
	message.SetString(lang, keyDuplicate, "Sua presença já foi registrada nesta aula.")
	message.SetString(lang, keyInvalidToken, "Este QR code não é válido. Escaneie o código mostrado pelo professor.")
	message.SetString(lang, keyInvalidRequest, "Não foi possível ler o escaneamento. Tente novamente.")
	message.SetString(lang, keyFailed, "Não foi possível registrar a presença. Tente novamente.")
}
