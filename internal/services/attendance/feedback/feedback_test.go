package feedback

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type fakeLocalizer struct {
	values map[string]string
}

func (f fakeLocalizer) Sprintf(key message.Reference, args ...any) string {
	asString, ok := key.(string)
	if !ok {
		return ""
	}
	template := f.values[asString]
	if template == "" {
		return asString
	}
	return fmt.Sprintf(template, args...)
}

func TestRenderWithRegisteredEnglishCatalog(t *testing.T) {
	t.Parallel()

	printer := message.NewPrinter(language.AmericanEnglish)
	tests := []struct {
		name  string
		input Input
		want  string
	}{
		{name: "accepted", input: Input{Outcome: OutcomeAccepted}, want: "Attendance marked successfully!"},
		{name: "accepted named", input: Input{Outcome: OutcomeAccepted, StudentName: "Asha Rao", ClassLabel: "Data Structures"}, want: "Attendance marked for Asha Rao in Data Structures."},
		{name: "expired", input: Input{Outcome: OutcomeExpired}, want: "QR code has expired. Please ask instructor for a new code."},
		{name: "out of range", input: Input{Outcome: OutcomeOutOfRange, Room: "Room 204", DistanceMeters: 149.6, ThresholdMeters: 100}, want: "You must be within 100m of Room 204. You are 150m away."},
		{name: "duplicate", input: Input{Outcome: OutcomeDuplicate}, want: "Your attendance is already marked for this session."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Render(printer, tt.input); got != tt.want {
				t.Fatalf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderPortuguese(t *testing.T) {
	t.Parallel()

	got := Render(NewPrinter("pt-BR,pt;q=0.9,en;q=0.5"), Input{Outcome: OutcomeExpired})
	if got != "O QR code expirou. Peça um novo código ao professor." {
		t.Fatalf("Render() = %q", got)
	}
}

func TestRenderFallsBackWithoutCatalogEntries(t *testing.T) {
	t.Parallel()

	loc := fakeLocalizer{values: map[string]string{}}
	if got := Render(loc, Input{Outcome: OutcomeAccepted, StudentName: "Asha", ClassLabel: "CS"}); got != defaultAccepted {
		t.Fatalf("accepted fallback = %q", got)
	}
	if got := Render(loc, Input{Outcome: OutcomeExpired}); got != defaultExpired {
		t.Fatalf("expired fallback = %q", got)
	}
	if got := Render(nil, Input{Outcome: "error"}); got != defaultFailed {
		t.Fatalf("failed fallback = %q", got)
	}
}

func TestRenderOutOfRangeDefaultsRoom(t *testing.T) {
	t.Parallel()

	loc := fakeLocalizer{values: map[string]string{keyOutOfRange: "within %.0fm of %s, you are %.0fm away"}}
	got := Render(loc, Input{Outcome: OutcomeOutOfRange, DistanceMeters: 500, ThresholdMeters: 100})
	if got != "within 100m of the classroom, you are 500m away" {
		t.Fatalf("Render() = %q", got)
	}
}

func TestNewPrinterDefaultsToEnglish(t *testing.T) {
	t.Parallel()

	for _, header := range []string{"", "fr-FR", "!!invalid!!"} {
		got := Render(NewPrinter(header), Input{Outcome: OutcomeAccepted})
		if got != defaultAccepted {
			t.Fatalf("header %q rendered %q", header, got)
		}
	}
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	var line string
	sink := LogSink{Logf: func(format string, args ...any) { line = fmt.Sprintf(format, args...) }}
	sink.Notify(context.Background(), Notice{StudentID: "stu-1", Outcome: OutcomeAccepted, Message: "ok"})
	if !strings.Contains(line, "student=stu-1") || !strings.Contains(line, "session=-") || !strings.Contains(line, `message="ok"`) {
		t.Fatalf("line = %q", line)
	}
}

func TestSinkFunc(t *testing.T) {
	t.Parallel()

	var got Notice
	var sink Sink = SinkFunc(func(_ context.Context, n Notice) { got = n })
	sink.Notify(context.Background(), Notice{Outcome: OutcomeDuplicate})
	if got.Outcome != OutcomeDuplicate {
		t.Fatalf("outcome = %q", got.Outcome)
	}
}
