package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aulaflow/aulaflow/internal/agent"
	"github.com/aulaflow/aulaflow/internal/config"
	"github.com/aulaflow/aulaflow/internal/conversation"
	"github.com/aulaflow/aulaflow/internal/docs"
	"github.com/aulaflow/aulaflow/internal/inference"
	"github.com/aulaflow/aulaflow/internal/journal"
	"github.com/aulaflow/aulaflow/internal/prompt"
	"github.com/aulaflow/aulaflow/internal/schooldb"
)

const version = "0.1.0"

func main() {
	printBanner()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nHasta luego.")
		cancel()
		os.Exit(0)
	}()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error de configuración: %v\n", err)
		os.Exit(1)
	}

	exec, err := schooldb.Open(cfg.DBPath)
	if err != nil {
		fmt.Printf("Error abriendo la base de datos %s: %v\n", cfg.DBPath, err)
		os.Exit(1)
	}
	defer exec.Close()

	school, err := schooldb.DetectSchoolConfig(ctx, exec, cfg.SchoolName)
	if err != nil {
		fmt.Printf("Error detectando la configuración escolar: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ %s | %d alumnos registrados\n\n", school.Name, school.TotalStudents)

	client := inference.NewClient(cfg.LLM, logger)

	var trace *journal.Journal
	if cfg.JournalPath != "" {
		trace, err = journal.Open(cfg.JournalPath)
		if err != nil {
			fmt.Printf("⚠ Bitácora deshabilitada: %v\n", err)
		} else {
			defer trace.Close()
		}
	}

	base := prompt.NewBaseManager(school)
	masterPrompts := prompt.NewMasterManager(base)
	studentPrompts := prompt.NewStudentManager(base)

	repo := schooldb.NewStudentRepository(exec)
	renderer := docs.NewCommandRenderer(cfg.RendererCmd)

	student := agent.NewStudentInterpreter(client, exec, repo, studentPrompts, renderer, renderer, logger)
	help := agent.NewHelpInterpreter(logger)
	general := agent.NewGeneralInterpreter(client, masterPrompts, logger)
	master := agent.NewMasterInterpreter(client, masterPrompts, student, help, general, logger)

	stack := conversation.NewStack(cfg.StackDepth, logger)
	processor := agent.NewMessageProcessor(master, stack, trace, logger)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("Tú: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if done := handleCommand(input, processor, trace); done {
				return
			}
			continue
		}

		started := time.Now()
		reply, err := processor.Process(ctx, input)
		if err != nil {
			fmt.Printf("\n❌ Error: %v\n\n", err)
			continue
		}

		fmt.Printf("\nAsistente: %s\n", reply.UserMessage)
		fmt.Printf("⏱ %.2fs\n\n", time.Since(started).Seconds())
	}
}

func printBanner() {
	fmt.Printf("AulaFlow v%s | Asistente administrativo escolar\n", version)
	fmt.Println("Escribe tu consulta o /help para ver los comandos.")
	fmt.Println()
}

// handleCommand runs a slash command; returns true when the REPL must exit.
func handleCommand(cmd string, processor *agent.MessageProcessor, trace *journal.Journal) bool {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false
	}

	switch parts[0] {
	case "/help":
		fmt.Println("\nComandos: /help /stack /recent /pdf <ruta> /exit")
		fmt.Println("Todo lo demás se interpreta como consulta en lenguaje natural.")
		fmt.Println()
	case "/stack":
		snapshot := processor.Stack()
		if len(snapshot) == 0 {
			fmt.Println("\nPila de conversación vacía.")
			fmt.Println()
			return false
		}
		fmt.Println()
		for i := len(snapshot) - 1; i >= 0; i-- {
			l := snapshot[i]
			fmt.Printf("  [%d] %q | %d filas | prioridad %.2f | espera %s\n",
				l.ID, l.Query, l.RowCount, l.Priority, l.Awaiting)
		}
		fmt.Println()
	case "/recent":
		if trace == nil {
			fmt.Println("\nBitácora deshabilitada (AULAFLOW_JOURNAL sin definir).")
			fmt.Println()
			return false
		}
		entries, err := trace.Recent(10)
		if err != nil {
			fmt.Printf("\nError leyendo la bitácora: %v\n\n", err)
			return false
		}
		fmt.Println()
		for _, e := range entries {
			fmt.Printf("  %s | %s | %s | %d filas | %.2fs\n",
				e.Timestamp.Format("15:04:05"), e.Intention, e.Action, e.RowCount, e.Duration.Seconds())
		}
		fmt.Println()
	case "/pdf":
		if len(parts) < 2 {
			fmt.Println("\nUso: /pdf <ruta al archivo>")
			fmt.Println()
			return false
		}
		processor.SetPanelPDF(parts[1])
		fmt.Printf("\nPDF cargado: %s\n\n", parts[1])
	case "/exit", "/quit":
		fmt.Println("Hasta luego.")
		return true
	default:
		fmt.Printf("\nComando desconocido %q. Usa /help.\n\n", parts[0])
	}
	return false
}
