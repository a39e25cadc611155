package api

const emotionIndexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>Emotion Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: sans-serif; background: #111; color: #eee; margin: 0; padding: 20px; }
        .app { max-width: 720px; margin: 0 auto; }
        img { width: 100%; height: auto; background: #000; border-radius: 6px; }
        .badge { display: inline-block; margin-top: 12px; padding: 6px 14px; border-radius: 14px; background: #333; font-size: 20px; }
        .meta { color: #888; font-size: 12px; margin-top: 6px; }
    </style>
</head>
<body>
    <div class="app">
        <h2>Live Feed</h2>
        <img id="stream" src="/video_feed" alt="Live camera stream">
        <div><span class="badge" id="emotion">Neutral</span></div>
        <div class="meta" id="meta">waiting for updates...</div>
    </div>
    <script>
        const badge = document.getElementById('emotion');
        const meta = document.getElementById('meta');

        function show(data) {
            badge.textContent = data.emotion;
            if (data.version !== undefined) {
                meta.textContent = 'update #' + data.version + ' at ' + data.timestamp;
            }
        }

        function poll() {
            fetch('/emotion').then(res => res.json()).then(show).catch(() => {});
        }

        if (window.EventSource) {
            const events = new EventSource('/emotion/stream');
            events.onmessage = (e) => show(JSON.parse(e.data));
            events.onerror = () => { events.close(); setInterval(poll, 1000); };
        } else {
            setInterval(poll, 1000);
        }
    </script>
</body>
</html>
`

const attentionIndexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>Attention Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: sans-serif; background: #111; color: #eee; margin: 0; padding: 20px; }
        .app { max-width: 720px; margin: 0 auto; }
        video { width: 100%; height: auto; background: #000; border-radius: 6px; }
        #status { margin-top: 12px; padding: 10px; border-radius: 6px; font-size: 22px; text-align: center; background: #333; }
        #status.watching { background: #1d6b2f; }
        #status.eyes_closed { background: #7a5b00; }
        #status.away, #status.no_face { background: #7a1d1d; }
        #status.error { background: #444; color: #f88; }
    </style>
</head>
<body>
    <div class="app">
        <h2>Attention</h2>
        <video id="video" autoplay playsinline muted></video>
        <div id="status">Starting camera...</div>
    </div>
    <script>
        const video = document.getElementById('video');
        const statusBox = document.getElementById('status');
        const labels = {
            watching: 'Watching Screen',
            eyes_closed: 'Eyes Closed',
            away: 'Looking Away',
            no_face: 'No Face',
        };
        let busy = false;

        function render(data) {
            const key = data.status === 'error' ? 'error' : data.status;
            statusBox.textContent = data.status === 'error' ? ('Error: ' + data.error) : (labels[key] || key);
            statusBox.className = key;
        }

        function capture() {
            if (busy || !video.videoWidth) return;
            busy = true;
            const canvas = document.createElement('canvas');
            canvas.width = video.videoWidth;
            canvas.height = video.videoHeight;
            canvas.getContext('2d').drawImage(video, 0, 0);
            canvas.toBlob(blob => {
                fetch('/analyze_frame', { method: 'POST', body: blob })
                    .then(res => res.json())
                    .then(render)
                    .catch(() => {})
                    .finally(() => { busy = false; });
            }, 'image/jpeg');
        }

        navigator.mediaDevices.getUserMedia({ video: true })
            .then(stream => {
                video.srcObject = stream;
                setInterval(capture, 500);
            })
            .catch(err => {
                statusBox.textContent = 'Webcam error: ' + err;
                statusBox.className = 'error';
            });
    </script>
</body>
</html>
`
