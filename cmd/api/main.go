// Package main (in api-subfolder) provides launch of the whole application except worker
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnendingLoop/Watermarker/internal/imageproc"
	"github.com/UnendingLoop/Watermarker/internal/kafka"
	"github.com/UnendingLoop/Watermarker/internal/mwlogger"
	"github.com/UnendingLoop/Watermarker/internal/repository"
	"github.com/UnendingLoop/Watermarker/internal/repository/settingscache"
	"github.com/UnendingLoop/Watermarker/internal/service"
	"github.com/UnendingLoop/Watermarker/internal/storage"
	"github.com/UnendingLoop/Watermarker/internal/transport"
	"github.com/redis/go-redis/v9"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/ginext"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/zlog"
)

func main() {
	// инициализировать конфиг/ считать энвы
	appConfig := config.New()
	appConfig.EnableEnv("")
	if err := appConfig.LoadEnvFiles("./.env"); err != nil {
		log.Fatalf("Failed to load envs: %s\nExiting app...", err)
	}

	// стартуем логгер
	zlog.InitConsole()
	if err := zlog.SetLevel(envString(appConfig, "LOG_LEVEL", "info")); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	// готовим заранее слушатель прерываний - контекст для всего приложения
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// подключитсья к базе
	dbConn := repository.ConnectWithRetries(appConfig, 5, 10*time.Second)
	// накатываем миграцию
	repository.MigrateWithRetries(dbConn.Master, "./migrations", 10, 15*time.Second)

	// подключиться к хранилищу
	strg := storage.NewImgStorage(ctx, appConfig, 10*time.Second)
	// создаем экземпляры репо
	taskRepo := repository.NewPostgresTaskRepo(dbConn)
	settingsRepo := repository.NewPostgresSettingsRepo(dbConn, envInt(appConfig, "DEFAULT_OPACITY", 15))
	// настройки каналов читаются на каждую задачу - кэшируем в редисе, если он есть
	if addr := appConfig.GetString("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: appConfig.GetString("REDIS_PASSWORD"),
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Println("Failed to close Redis-client:", err)
			}
		}()
		settingsRepo = settingscache.New(settingsRepo, rdb, envDuration(appConfig, "SETTINGS_CACHE_TTL", 5*time.Minute))
	}

	// ждем пока кафка раздуплится
	broker := appConfig.GetString("KAFKA_BROKER")
	if err := kafka.WaitKafkaReady(ctx, broker, 5*time.Second); err != nil {
		log.Fatalf("Kafka is unreachable: %v", err)
	}
	// подключиться к кафке как продюсер
	topic := appConfig.GetString("KAFKA_TOPIC")
	if err := kafka.InitKafkaTopics(ctx, broker, 10*time.Second, topic); err != nil {
		log.Fatalf("Failed to init Kafka topics: %v", err)
	}
	pub := wbfkafka.NewProducer([]string{broker}, topic)

	// таблица форматов нужна api только для отсечения неподдерживаемых файлов до загрузки
	formats := imageproc.NewClassifier(imageproc.NewCapabilityTable())
	previewer := imageproc.NewThumbnailer(envInt(appConfig, "PREVIEW_SIZE", 512))

	// создаем экземпляры сервисов
	var taskSvc TaskAPIService = service.NewTaskService(taskRepo, settingsRepo, pub, strg, formats)
	var settingsSvc SettingsAPIService = service.NewSettingsService(settingsRepo, strg, previewer)
	// cоздаем экземпляры хендлеров HTTP
	tasks := transport.NewTaskHandler(taskSvc)
	settings := transport.NewSettingsHandler(settingsSvc)
	// сетапим сервер
	mode := appConfig.GetString("GIN_MODE")
	engine := ginext.New(mode)

	engine.GET("/ping", tasks.SimplePinger)

	engine.PUT("/channels/:server/:channel/watermark", settings.SetWatermark)      // загрузка/замена ватермарка канала
	engine.GET("/channels/:server/:channel/watermark", settings.GetWatermark)      // текущий ватермарк или его превью
	engine.PATCH("/channels/:server/:channel/opacity", settings.SetOpacity)        // прозрачность ватермарка канала
	engine.DELETE("/channels/:server/:channel/watermark", settings.ClearWatermark) // сброс настроек канала
	engine.POST("/channels/:server/:channel/images", tasks.Submit)                 // создание задачи

	engine.GET("/images", tasks.GetAllTasks)           // получение списка задач с пагинацией и сортировкой
	engine.GET("/images/:id", tasks.GetTask)           // статус задачи
	engine.GET("/images/:id/result", tasks.LoadResult) // загрузка результата
	engine.DELETE("/images/:id", tasks.Delete)         // удаление

	srv := &http.Server{
		Addr:    ":" + appConfig.GetString("APP_PORT"),
		Handler: mwlogger.NewMWLogger(engine),
	}

	// Server launch
	go func() {
		log.Printf("Server running on http://localhost%s\n", srv.Addr)
		err := srv.ListenAndServe()
		if err != nil {
			switch {
			case errors.Is(err, http.ErrServerClosed):
				log.Println("Server gracefully stopping...")
			default:
				log.Printf("Server stopped: %v", err)
				stop()
			}
		}
	}()

	// запускаем фонового воркера для отслеживания подвисших задач
	go recoveryLoop(ctx, taskSvc)

	// ждем отмены контекста для запуска грейсфул закрытия соединений бд и кафки
	<-ctx.Done()

	shutdown(srv, pub, dbConn)
	log.Println("Exiting api...")
}

func recoveryLoop(ctx context.Context, svc TaskAPIService) {
	defer func() {
		if r := recover(); r != nil {
			log.Println("Recovery loop crashed:", r)
		}
	}()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.ReviveOrphans(ctx, 20)
		}
	}
}

func shutdown(srv *http.Server, pub *wbfkafka.Producer, dbConn *dbpg.DB) {
	log.Println("Interrupt received!!! Starting shutdown sequence...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("Failed to shutdown HTTP-server gracefully:", err)
	}

	// Closing Kafka connection:
	if err := pub.Close(); err != nil {
		log.Println("Failed to close Kafka-writer:", err)
	}
	log.Println("Kafka-producer connection closed.")

	// Closing DB connection
	if err := dbConn.Master.Close(); err != nil {
		log.Println("Failed to close DB-conn correctly:", err)
		return
	}
	log.Println("DBconn closed")
}
