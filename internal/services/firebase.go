package services

import (
	"context"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// InitFirebase initializes the Firebase Admin SDK and returns the auth client
// and the Firestore client backing the portfolio store.
func InitFirebase(credPath, projectID string) (*auth.Client, *firestore.Client, error) {
	opt := option.WithCredentialsFile(credPath)
	conf := &firebase.Config{ProjectID: projectID}

	app, err := firebase.NewApp(context.Background(), conf, opt)
	if err != nil {
		return nil, nil, err
	}

	authClient, err := app.Auth(context.Background())
	if err != nil {
		return nil, nil, err
	}

	fsClient, err := app.Firestore(context.Background())
	if err != nil {
		return nil, nil, err
	}

	return authClient, fsClient, nil
}
