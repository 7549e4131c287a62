package i18n

var ptBRCatalog = &Catalog{
	locale: "pt-BR",
	messages: map[Code]string{
		CodeUnknown: "Algo deu errado. Tente novamente.",

		CodePinInvalidFormat:   "O PIN deve ter 4 dígitos e coincidir.",
		CodePinMismatch:        "O PIN deve ter 4 dígitos e coincidir.",
		CodePinIncorrect:       "PIN incorreto",
		CodeCurrentPinRequired: "Digite seu PIN atual para alterá-lo.",

		CodeTimeoutOutOfRange: "O bloqueio automático deve ser de pelo menos {{.Min}} minutos.",

		CodeLockedOut: "Muitas tentativas incorretas. Tente novamente em {{.Minutes}} minutos.",

		CodeBiometricUnavailable: "O desbloqueio biométrico não está disponível neste dispositivo.",
		CodeBiometricFailed:      "Falha na autenticação biométrica",
		CodeCeremonyNotFound:     "A solicitação biométrica expirou. Tente novamente.",

		CodeResetNotConfirmed:  "Confirme que deseja apagar seus dados salvos.",
		CodeStateDisallowsOp:   "Esta ação não está disponível agora.",
		CodeAttemptInFlight:    "Um desbloqueio já está em andamento.",
		CodeInvalidRequest:     "Não foi possível entender a solicitação.",
		CodeNotFound:           "Não encontrado.",
		CodeStorageUnavailable: "Os dados salvos estão indisponíveis. Tente novamente.",

		CodeOriginNotAllowed: "Esta solicitação veio de um site sem permissão para usar o guard.",
	},
}
