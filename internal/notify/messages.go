package notify

import (
	"fmt"
	"time"

	"github.com/hackgods/telehealth-scheduling/internal/directory"
)

const (
	langPT = "pt"
	langEN = "en"

	displayLayout = "02-01-2006 15:04"
	clockLayout   = "15:04"
)

// Message is the localized text sent to one party.
type Message struct {
	To    directory.Party
	Title string
	Body  string
}

type texts map[string]string

func (t texts) in(lang string) string {
	if s, ok := t[lang]; ok {
		return s
	}
	return t[langPT]
}

var titles = map[EventType]texts{
	EventBooked:      {langPT: "Nova consulta", langEN: "New consultation"},
	EventRescheduled: {langPT: "Alteração à consulta", langEN: "Consultation change"},
	EventCancelled:   {langPT: "Consulta cancelada", langEN: "Consultation cancelled"},
	EventReminder:    {langPT: "Consulta em breve", langEN: "Consultation Soon"},
}

func newConsultation(day, patient string) texts {
	return texts{
		langPT: fmt.Sprintf("Recebeu uma nova consulta para %s para o paciente %s", day, patient),
		langEN: fmt.Sprintf("You've received a new consultation to %s for the patient %s", day, patient),
	}
}

func changeDate(from, to string) texts {
	return texts{
		langPT: fmt.Sprintf("A consulta de dia %s passou para o dia %s", from, to),
		langEN: fmt.Sprintf("The consultation on %s have changed to the day %s", from, to),
	}
}

func cancelled(day string) texts {
	return texts{
		langPT: fmt.Sprintf("A consulta no dia %s foi cancelada", day),
		langEN: fmt.Sprintf("The consultation on %s was cancelled", day),
	}
}

func reminder(clock, counterpart string, counterpartIsUser bool) texts {
	pt, en := "psicólogo", "psychologist"
	if counterpartIsUser {
		pt, en = "paciente", "user"
	}
	return texts{
		langPT: fmt.Sprintf("Irá ter uma consulta hoje às %s com o %s %s", clock, pt, counterpart),
		langEN: fmt.Sprintf("You will have a consultation today at %s with the %s %s", clock, en, counterpart),
	}
}

// compose decides who hears about ev and what they are told. Events without
// a message (finished) yield nothing.
func compose(ev Event, r *directory.Recipients, loc *time.Location) []Message {
	title, ok := titles[ev.Type]
	if !ok {
		return nil
	}

	start := ev.Start.In(loc)
	day := start.Format(displayLayout)

	msg := func(to directory.Party, body texts) Message {
		return Message{To: to, Title: title.in(to.Language), Body: body.in(to.Language)}
	}

	switch ev.Type {
	case EventBooked:
		return []Message{msg(r.Psychologist, newConsultation(day, r.User.Name))}

	case EventRescheduled:
		previous := day
		if ev.PreviousStart != nil {
			previous = ev.PreviousStart.In(loc).Format(displayLayout)
		}
		return []Message{msg(r.Psychologist, changeDate(previous, day))}

	case EventCancelled:
		body := cancelled(day)
		if ev.CancelledBy == "user" {
			return []Message{msg(r.Psychologist, body)}
		}
		return []Message{msg(r.User, body), msg(r.Psychologist, body)}

	case EventReminder:
		clock := start.Format(clockLayout)
		return []Message{
			msg(r.User, reminder(clock, r.Psychologist.Name, false)),
			msg(r.Psychologist, reminder(clock, r.User.Name, true)),
		}
	}
	return nil
}
