package main

import (
	"compress/bzip2"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/MrCodeEU/lpad/pkg/logging"
)

// faceModel is a dlib model file published bzip2-compressed on dlib.net.
type faceModel struct {
	Name string
	URL  string
}

// faceModels are the files the go-face recognizer loads.
var faceModels = []faceModel{
	{
		Name: "shape_predictor_5_face_landmarks.dat",
		URL:  "http://dlib.net/files/shape_predictor_5_face_landmarks.dat.bz2",
	},
	{
		Name: "dlib_face_recognition_resnet_model_v1.dat",
		URL:  "http://dlib.net/files/dlib_face_recognition_resnet_model_v1.dat.bz2",
	},
	{
		Name: "mmod_human_face_detector.dat",
		URL:  "http://dlib.net/files/mmod_human_face_detector.dat.bz2",
	},
}

func cmdDownloadModels(args []string) error {
	modelDir := cfg.Recognition.ModelPath
	if len(args) > 0 {
		modelDir = args[0]
	}

	log := logging.Component("download")
	log.WithField("dir", modelDir).Info("Downloading face models")

	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	for _, model := range missingModels(modelDir) {
		fmt.Printf("Downloading %s...\n", model.Name)
		if err := downloadAndExtract(client, model.URL, filepath.Join(modelDir, model.Name)); err != nil {
			return fmt.Errorf("failed to download %s: %w", model.Name, err)
		}
		log.WithField("model", model.Name).Info("Model downloaded")
	}

	fmt.Printf("All models present in %s\n", modelDir)
	return nil
}

// missingModels returns the models not yet present in dir.
func missingModels(dir string) []faceModel {
	var missing []faceModel
	for _, model := range faceModels {
		if _, err := os.Stat(filepath.Join(dir, model.Name)); err == nil {
			logging.Debugf("Model %s already exists, skipping", model.Name)
			continue
		}
		missing = append(missing, model)
	}
	return missing
}

// downloadAndExtract fetches url and writes the decompressed body to
// targetPath. A partial download never replaces the target.
func downloadAndExtract(client *http.Client, url, targetPath string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	tmp := targetPath + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, bzip2.NewReader(resp.Body)); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, targetPath)
}
