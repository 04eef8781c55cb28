package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/pickforge/internal/domain"
	"github.com/pickforge/internal/kafka"
	"github.com/pickforge/internal/odds"
)

var teams = []string{
	"Kansas City Chiefs", "Buffalo Bills", "Detroit Lions", "Green Bay Packers",
	"Philadelphia Eagles", "Dallas Cowboys", "San Francisco 49ers", "Seattle Seahawks",
	"Baltimore Ravens", "Pittsburgh Steelers", "Miami Dolphins", "New York Jets",
}

// demoGame is a simulated game whose score advances on every tick
type demoGame struct {
	msg     kafka.ScoreMessage
	home    int
	away    int
	updates int
}

func newDemoGames(league domain.League, count int, start time.Time) []*demoGame {
	games := make([]*demoGame, 0, count)
	for i := 0; i < count; i++ {
		home := teams[(2*i)%len(teams)]
		away := teams[(2*i+1)%len(teams)]
		games = append(games, &demoGame{
			msg: kafka.ScoreMessage{
				League: string(league),
				ScoreResult: odds.ScoreResult{
					ID:           fmt.Sprintf("demo-%s-%d", league, i+1),
					CommenceTime: start.Add(time.Duration(i) * 15 * time.Minute).UTC().Format(time.RFC3339),
					HomeTeam:     home,
					AwayTeam:     away,
				},
			},
		})
	}
	return games
}

// advance adds a scoring play and marks the game completed after
// finalAfter updates.
func (g *demoGame) advance(finalAfter int) kafka.ScoreMessage {
	points := []int{3, 7, 7, 6, 2}[rand.Intn(5)]
	if rand.Intn(2) == 0 {
		g.home += points
	} else {
		g.away += points
	}
	g.updates++

	msg := g.msg
	msg.Completed = g.updates >= finalAfter
	msg.Scores = []odds.TeamScore{
		{Name: msg.HomeTeam, Score: fmt.Sprint(g.home)},
		{Name: msg.AwayTeam, Score: fmt.Sprint(g.away)},
	}
	return msg
}

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "pickforge-scores", "Kafka topic")
	leagueFlag := flag.String("league", "nfl", "League tag for the generated games")
	gameCount := flag.Int("games", 6, "Number of simulated games")
	updatesPerSecond := flag.Int("rate", 2, "Score updates per second")
	finalAfter := flag.Int("final-after", 8, "Updates per game before it is marked completed")
	duration := flag.Duration("duration", 0, "Duration to run (0 = until every game is final)")
	flag.Parse()

	league, ok := domain.LookupLeague(*leagueFlag)
	if !ok {
		log.Fatalf("Unknown league %q", *leagueFlag)
	}
	if *gameCount <= 0 || *updatesPerSecond <= 0 || *finalAfter <= 0 {
		log.Fatal("games, rate and final-after must be positive")
	}

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("PickForge score producer")
	fmt.Printf("  Brokers:      %s\n", *brokers)
	fmt.Printf("  Topic:        %s\n", *topic)
	fmt.Printf("  League:       %s\n", league)
	fmt.Printf("  Games:        %d\n", *gameCount)
	fmt.Printf("  Updates/sec:  %d\n", *updatesPerSecond)
	fmt.Println()

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	shutdown := func(reason string) {
		fmt.Printf("\n%s, shutting down...\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	send := func(msg kafka.ScoreMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}
		producer.Input() <- &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(msg.ID),
			Value: sarama.ByteEncoder(data),
		}
	}

	games := newDemoGames(league, *gameCount, time.Now().Add(-time.Hour))
	live := make([]*demoGame, len(games))
	copy(live, games)

	ticker := time.NewTicker(time.Second / time.Duration(*updatesPerSecond))
	defer ticker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	for {
		select {
		case <-sigChan:
			shutdown("Interrupted")
			return

		case <-ticker.C:
			if !endTime.IsZero() && time.Now().After(endTime) {
				shutdown("Duration reached")
				return
			}

			idx := rand.Intn(len(live))
			msg := live[idx].advance(*finalAfter)
			send(msg)
			fmt.Printf("[%s] %s %s %s-%s %s completed=%v\n",
				time.Now().Format("15:04:05"),
				msg.ID,
				msg.HomeTeam,
				msg.Scores[0].Score,
				msg.Scores[1].Score,
				msg.AwayTeam,
				msg.Completed,
			)

			if msg.Completed {
				live = append(live[:idx], live[idx+1:]...)
				if len(live) == 0 {
					shutdown("All games final")
					return
				}
			}
		}
	}
}
