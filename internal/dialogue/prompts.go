package dialogue

import (
	"fmt"
	"strings"
	"time"
)

const (
	optionBook       = "Agendar consulta"
	optionTriage     = "Primeiro atendimento (triagem)"
	optionManage     = "Reagendar ou cancelar consulta"
	optionQuit       = "Encerrar atendimento"
	optionInPerson   = "Presencial"
	optionRemote     = "Remoto"
	optionReschedule = "Reagendar"
	optionCancel     = "Cancelar"
	optionBackToMenu = "Voltar ao menu"
	optionYes        = "Sim"
	optionNo         = "Não"
)

var (
	mainMenuOptions = []string{optionBook, optionTriage, optionManage, optionQuit}
	kindOptions     = []string{optionInPerson, optionRemote}
	manageOptions   = []string{optionReschedule, optionCancel, optionBackToMenu}
	moreHelpOptions = []string{optionBackToMenu, optionQuit}
	yesNoOptions    = []string{optionYes, optionNo}
)

const (
	msgWelcome        = "Olá! Sou a assistente virtual do escritório. Como posso ajudar?"
	msgMenuAgain      = "Certo! Como posso ajudar?"
	msgInvalidOption  = "Não entendi sua resposta. Por favor, responda com o número de uma das opções."
	msgInvalidYesNo   = "Não entendi. Por favor, responda *sim* ou *não*."
	msgAskKind        = "A consulta será presencial ou remota (por vídeo)?"
	msgAskDate        = "Estes são os próximos dias com horários livres. Qual prefere?"
	msgAskTime        = "Horários disponíveis em %s:"
	msgAskSlot        = "Estes são os próximos horários livres. Qual prefere?"
	msgAskSubject     = "Qual o assunto da consulta? Descreva em poucas palavras."
	msgEmptyText      = "Não recebi nenhum texto. Pode escrever novamente?"
	msgAskCaseArea    = "Qual a área do seu caso? (por exemplo: trabalhista, família, consumidor)"
	msgAskLocation    = "Em qual cidade e estado você está?"
	msgAskHasLawyer   = "Você já tem advogado acompanhando este caso?"
	msgFoundEvent     = "Encontrei sua consulta de %s. O que deseja fazer?"
	msgNoEvent        = "Não encontrei consultas futuras no seu número."
	msgDayGone        = "Esse dia não tem mais horários livres."
	msgSlotGone       = "Esse horário acabou de ser ocupado. Vamos escolher outro."
	msgNoSlots        = "No momento não há horários disponíveis nos próximos dias. Por favor, tente novamente mais tarde."
	msgCalendarDown   = "Desculpe, não consegui consultar a agenda agora. Por favor, tente novamente mais tarde."
	msgBookingFailed  = "Desculpe, ocorreu um erro ao registrar sua consulta. Por favor, tente novamente mais tarde."
	msgCancelFailed   = "Desculpe, ocorreu um erro ao cancelar sua consulta. Por favor, tente novamente mais tarde."
	msgCancelled      = "Sua consulta de %s foi cancelada. Quando quiser, é só chamar."
	msgOldNotRemoved  = "Não consegui liberar o horário anterior; nossa equipe fará o ajuste."
	msgMoreHelp       = "Tudo bem, nada foi alterado. Posso ajudar em algo mais?"
	msgGoodbye        = "Obrigado pelo contato! Até logo."
	msgStillThere     = "Você ainda está aí? Responda *sim* para continuar ou *não* para encerrar."
	msgResume         = "Ótimo! Vamos continuar de onde paramos."
	msgExpired        = "Como não recebemos resposta, encerramos o atendimento. Quando quiser, é só mandar uma nova mensagem."
	msgConfirmSuffix  = "Posso confirmar? Responda *sim* ou *não*."
	msgBookedHeader   = "Consulta agendada com sucesso!"
	msgRescheduledHdr = "Consulta remarcada com sucesso!"
)

var weekdayNames = [...]string{"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado"}

// menu renders a numbered list under header.
func menu(header string, labels []string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for i, l := range labels {
		fmt.Fprintf(&b, "\n%d - %s", i+1, l)
	}
	return b.String()
}

func formatDate(t time.Time) string {
	return t.Format("02/01/2006")
}

func formatTime(t time.Time) string {
	return t.Format("15:04")
}

func dayLabel(t time.Time) string {
	return fmt.Sprintf("%s, %s", weekdayNames[t.Weekday()], t.Format("02/01"))
}

func slotLabel(t time.Time) string {
	return fmt.Sprintf("%s às %s", dayLabel(t), formatTime(t))
}

// when formats an appointment start for confirmations.
func when(t time.Time) string {
	return fmt.Sprintf("%s às %s", formatDate(t), formatTime(t))
}

func join(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
